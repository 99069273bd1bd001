package wire

import (
	"encoding/binary"
	"math"

	"github.com/silkit-go/vasio/pkg/vasio/types"
)

// SerializedMessage is the length-prefixed, tagged envelope every frame on
// a Peer connection is wrapped in: a uint32 total size, a MsgKind byte, an
// optional RegistryMessageKind byte, and — for sim messages only — a
// (remoteReceiverIndex, senderEndpointAddress) pair ahead of the payload.
type SerializedMessage struct {
	buffer *MessageBuffer

	size          uint32
	kind          types.MsgKind
	registryKind  types.RegistryMessageKind
	remoteIndex   types.EndpointId
	endpointAddr  types.EndpointAddress
}

// NewSerializedMessage starts an outgoing envelope for a non-sim message
// (subscription or registry traffic), which carries no endpoint address.
func NewSerializedMessage(kind types.MsgKind, registryKind types.RegistryMessageKind) *SerializedMessage {
	m := &SerializedMessage{
		buffer:       NewMessageBuffer(),
		kind:         kind,
		registryKind: registryKind,
	}
	m.writeNetworkHeaders()
	return m
}

// NewSimSerializedMessage starts an outgoing envelope for a targeted sim
// payload, carrying the remote receiver index and the sender's endpoint.
func NewSimSerializedMessage(remoteIndex types.EndpointId, endpoint types.EndpointAddress) *SerializedMessage {
	m := &SerializedMessage{
		buffer:      NewMessageBuffer(),
		kind:        types.MsgKindSimMsg,
		remoteIndex: remoteIndex,
		endpointAddr: endpoint,
	}
	m.writeNetworkHeaders()
	return m
}

// ParseSerializedMessage reads a full frame (blob starts at the 4-byte size
// prefix, as Peer's framing loop delivers it) and returns the envelope with
// its headers decoded and the payload ready for Decode.
func ParseSerializedMessage(blob []byte) (*SerializedMessage, error) {
	m := &SerializedMessage{buffer: NewMessageBufferFromBytes(blob)}
	if err := m.readNetworkHeaders(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SerializedMessage) isMwOrSim() bool {
	return m.kind == types.MsgKindSimMsg
}

func (m *SerializedMessage) writeNetworkHeaders() {
	m.buffer.PutUint32(0) // placeholder, patched in ReleaseStorage
	m.buffer.PutEnum(uint8(m.kind))
	if m.kind == types.MsgKindRegistryMessage {
		m.buffer.PutEnum(uint8(m.registryKind))
	}
	if m.isMwOrSim() {
		m.buffer.PutUint64(uint64(m.remoteIndex))
		m.buffer.PutUint64(uint64(m.endpointAddr.Participant))
		m.buffer.PutUint64(uint64(m.endpointAddr.Endpoint))
	}
}

func (m *SerializedMessage) readNetworkHeaders() error {
	size, err := m.buffer.GetUint32()
	if err != nil {
		return err
	}
	m.size = size

	kind, err := m.buffer.GetEnum()
	if err != nil {
		return err
	}
	m.kind = types.MsgKind(kind)

	if m.kind == types.MsgKindRegistryMessage {
		rk, err := m.buffer.GetEnum()
		if err != nil {
			return err
		}
		m.registryKind = types.RegistryMessageKind(rk)
	}

	if m.isMwOrSim() {
		idx, err := m.buffer.GetUint64()
		if err != nil {
			return err
		}
		participant, err := m.buffer.GetUint64()
		if err != nil {
			return err
		}
		endpoint, err := m.buffer.GetUint64()
		if err != nil {
			return err
		}
		m.remoteIndex = types.EndpointId(idx)
		m.endpointAddr = types.EndpointAddress{
			Participant: types.ParticipantId(participant),
			Endpoint:    types.EndpointId(endpoint),
		}
	}
	return nil
}

// Buffer exposes the underlying MessageBuffer for Codec to write/read the
// typed payload after the network headers.
func (m *SerializedMessage) Buffer() *MessageBuffer { return m.buffer }

func (m *SerializedMessage) MsgKind() types.MsgKind                   { return m.kind }
func (m *SerializedMessage) RegistryKind() types.RegistryMessageKind { return m.registryKind }

// RemoteIndex returns the targeted receiver index; only valid for sim
// messages, matching the original's IsMwOrSim guard.
func (m *SerializedMessage) RemoteIndex() (types.EndpointId, error) {
	if !m.isMwOrSim() {
		return 0, types.ErrInvalidOperation
	}
	return m.remoteIndex, nil
}

// EndpointAddress returns the sender's endpoint; only valid for sim
// messages.
func (m *SerializedMessage) EndpointAddress() (types.EndpointAddress, error) {
	if !m.isMwOrSim() {
		return types.EndpointAddress{}, types.ErrInvalidOperation
	}
	return m.endpointAddr, nil
}

// ReleaseStorage finalizes the frame by patching the real size into the
// size prefix and returns the bytes ready to write to a socket.
func (m *SerializedMessage) ReleaseStorage() ([]byte, error) {
	buf := m.buffer.ReleaseStorage()
	if len(buf) > math.MaxUint32 {
		return nil, types.ErrInvalidOperation
	}
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(buf)))
	return buf, nil
}

// PeekRegistryMsgHeader decodes a RegistryMsgHeader without consuming the
// buffer's read cursor, used by Connection and Registry to validate the
// preamble before committing to a full ParticipantAnnouncement decode. A
// header whose preamble is not "VIB-" yields ErrProtocol.
func PeekRegistryMsgHeader(buf *MessageBuffer) (types.RegistryMsgHeader, error) {
	snapshot := buf.rPos
	defer func() { buf.rPos = snapshot }()

	var h types.RegistryMsgHeader
	preamble, err := buf.GetFixed(4)
	if err != nil {
		return h, err
	}
	copy(h.Preamble[:], preamble)
	h.VersionHigh, err = buf.GetUint16()
	if err != nil {
		return h, err
	}
	h.VersionLow, err = buf.GetUint16()
	if err != nil {
		return h, err
	}
	if !h.ValidPreamble() {
		return h, types.ErrProtocol
	}
	return h, nil
}
