// Package wire implements the length-prefixed, tagged binary framing used
// between participants: a cursor-based MessageBuffer for primitive
// encode/decode, a SerializedMessage envelope around it, and a per-type
// Codec dispatch table.
package wire

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/silkit-go/vasio/pkg/vasio/types"
)

// byteOrder is fixed to little-endian across the whole wire format; see
// DESIGN.md's Open Question resolution on host byte order.
var byteOrder = binary.LittleEndian

// MessageBuffer is a growable byte buffer with independent read and write
// cursors, matching the streaming operator<</operator>> shape of the
// original C++ buffer. Zero value is ready to use for writing; use
// NewMessageBufferFromBytes to wrap received bytes for reading.
type MessageBuffer struct {
	storage []byte
	wPos    int
	rPos    int

	// version is a protocol-version tag, {0,0} (unknown) unless the caller
	// sets it. No codec in this package reads it: the version-aware
	// decoders branch on the RegistryMsgHeader they decode instead.
	version types.ProtocolVersion
}

// NewMessageBuffer returns an empty write-oriented buffer.
func NewMessageBuffer() *MessageBuffer {
	return &MessageBuffer{}
}

// NewMessageBufferFromBytes wraps already-received bytes for reading.
func NewMessageBufferFromBytes(data []byte) *MessageBuffer {
	return &MessageBuffer{storage: data}
}

func (b *MessageBuffer) SetProtocolVersion(v types.ProtocolVersion) { b.version = v }
func (b *MessageBuffer) ProtocolVersion() types.ProtocolVersion     { return b.version }

// ReleaseStorage returns the underlying bytes and resets the buffer to
// empty, mirroring the C++ move-out semantics.
func (b *MessageBuffer) ReleaseStorage() []byte {
	out := b.storage
	b.storage = nil
	b.wPos = 0
	b.rPos = 0
	return out
}

// Remaining reports how many unread bytes are left.
func (b *MessageBuffer) Remaining() int {
	return len(b.storage) - b.rPos
}

func (b *MessageBuffer) grow(n int) []byte {
	if b.wPos+n > len(b.storage) {
		grown := make([]byte, b.wPos+n)
		copy(grown, b.storage)
		b.storage = grown
	}
	dst := b.storage[b.wPos : b.wPos+n]
	b.wPos += n
	return dst
}

func (b *MessageBuffer) take(n int) ([]byte, error) {
	if b.rPos+n > len(b.storage) {
		return nil, types.ErrEndOfBuffer
	}
	out := b.storage[b.rPos : b.rPos+n]
	b.rPos += n
	return out, nil
}

// --- fixed-width integers -------------------------------------------------

func (b *MessageBuffer) PutUint8(v uint8) { b.grow(1)[0] = v }
func (b *MessageBuffer) GetUint8() (uint8, error) {
	buf, err := b.take(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b *MessageBuffer) PutUint16(v uint16) { byteOrder.PutUint16(b.grow(2), v) }
func (b *MessageBuffer) GetUint16() (uint16, error) {
	buf, err := b.take(2)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint16(buf), nil
}

func (b *MessageBuffer) PutUint32(v uint32) { byteOrder.PutUint32(b.grow(4), v) }
func (b *MessageBuffer) GetUint32() (uint32, error) {
	buf, err := b.take(4)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint32(buf), nil
}

func (b *MessageBuffer) PutUint64(v uint64) { byteOrder.PutUint64(b.grow(8), v) }
func (b *MessageBuffer) GetUint64() (uint64, error) {
	buf, err := b.take(8)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint64(buf), nil
}

// --- enums (encoded as a single byte, matching uint8_t-backed C++ enums) --

func (b *MessageBuffer) PutEnum(v uint8) { b.PutUint8(v) }
func (b *MessageBuffer) GetEnum() (uint8, error) { return b.GetUint8() }

// --- strings and byte sequences, both length-prefixed with a uint32 ------

func (b *MessageBuffer) PutString(s string) {
	b.PutUint32(uint32(len(s)))
	copy(b.grow(len(s)), s)
}

func (b *MessageBuffer) GetString() (string, error) {
	n, err := b.GetUint32()
	if err != nil {
		return "", err
	}
	buf, err := b.take(int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func (b *MessageBuffer) PutBytes(v []byte) {
	b.PutUint32(uint32(len(v)))
	copy(b.grow(len(v)), v)
}

func (b *MessageBuffer) GetBytes() ([]byte, error) {
	n, err := b.GetUint32()
	if err != nil {
		return nil, err
	}
	buf, err := b.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, buf)
	return out, nil
}

// --- fixed-size arrays, no length prefix ---------------------------------

func (b *MessageBuffer) PutFixed(v []byte) { copy(b.grow(len(v)), v) }

func (b *MessageBuffer) GetFixed(n int) ([]byte, error) {
	buf, err := b.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, buf)
	return out, nil
}

// --- generic vectors, written/read element-by-element via callbacks ------

// PutVectorLen writes the uint32 element count prefix for a generic vector;
// callers then encode each element themselves.
func (b *MessageBuffer) PutVectorLen(n int) { b.PutUint32(uint32(n)) }

func (b *MessageBuffer) GetVectorLen() (int, error) {
	n, err := b.GetUint32()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// --- duration / time, encoded as an int64 count of nanoseconds -----------

func (b *MessageBuffer) PutDuration(d time.Duration) { b.PutUint64(uint64(d.Nanoseconds())) }

func (b *MessageBuffer) GetDuration() (time.Duration, error) {
	v, err := b.GetUint64()
	if err != nil {
		return 0, err
	}
	return time.Duration(int64(v)), nil
}

func (b *MessageBuffer) PutTime(t time.Time) { b.PutDuration(time.Duration(t.UnixNano())) }

func (b *MessageBuffer) GetTime() (time.Time, error) {
	d, err := b.GetDuration()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, int64(d)), nil
}

// PutStringMap writes a string->string map in the order of keys, so
// ordered callers (e.g. SupplementalData) round-trip exactly.
func (b *MessageBuffer) PutStringMap(keys []string, values map[string]string) {
	b.PutVectorLen(len(keys))
	for _, k := range keys {
		b.PutString(k)
		b.PutString(values[k])
	}
}

func (b *MessageBuffer) GetStringMap() ([]string, map[string]string, error) {
	n, err := b.GetVectorLen()
	if err != nil {
		return nil, nil, err
	}
	keys := make([]string, 0, n)
	values := make(map[string]string, n)
	for i := 0; i < n; i++ {
		k, err := b.GetString()
		if err != nil {
			return nil, nil, err
		}
		v, err := b.GetString()
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, k)
		values[k] = v
	}
	return keys, values, nil
}

func (b *MessageBuffer) String() string {
	return fmt.Sprintf("MessageBuffer{wPos=%d rPos=%d len=%d}", b.wPos, b.rPos, len(b.storage))
}
