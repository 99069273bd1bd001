package wire

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMessageBufferRoundTripPrimitives(t *testing.T) {
	b := NewMessageBuffer()
	b.PutUint8(7)
	b.PutUint16(1234)
	b.PutUint32(567890)
	b.PutUint64(123456789012345)
	b.PutEnum(3)
	b.PutString("hello")
	b.PutBytes([]byte{1, 2, 3, 4})
	b.PutFixed([]byte{0xAA, 0xBB})

	r := NewMessageBufferFromBytes(b.ReleaseStorage())

	if v, err := r.GetUint8(); err != nil || v != 7 {
		t.Fatalf("GetUint8 = %v, %v", v, err)
	}
	if v, err := r.GetUint16(); err != nil || v != 1234 {
		t.Fatalf("GetUint16 = %v, %v", v, err)
	}
	if v, err := r.GetUint32(); err != nil || v != 567890 {
		t.Fatalf("GetUint32 = %v, %v", v, err)
	}
	if v, err := r.GetUint64(); err != nil || v != 123456789012345 {
		t.Fatalf("GetUint64 = %v, %v", v, err)
	}
	if v, err := r.GetEnum(); err != nil || v != 3 {
		t.Fatalf("GetEnum = %v, %v", v, err)
	}
	if v, err := r.GetString(); err != nil || v != "hello" {
		t.Fatalf("GetString = %q, %v", v, err)
	}
	if v, err := r.GetBytes(); err != nil || string(v) != "\x01\x02\x03\x04" {
		t.Fatalf("GetBytes = %v, %v", v, err)
	}
	if v, err := r.GetFixed(2); err != nil || v[0] != 0xAA || v[1] != 0xBB {
		t.Fatalf("GetFixed = %v, %v", v, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected buffer fully consumed, %d bytes remain", r.Remaining())
	}
}

func TestMessageBufferEndOfBuffer(t *testing.T) {
	r := NewMessageBufferFromBytes([]byte{0x01})
	if _, err := r.GetUint32(); err == nil {
		t.Fatal("expected an error reading past the end of the buffer")
	}
}

func TestMessageBufferTimeRoundTrips(t *testing.T) {
	b := NewMessageBuffer()
	now := time.Unix(1700000000, 123000)
	b.PutTime(now)
	b.PutDuration(250 * time.Millisecond)

	r := NewMessageBufferFromBytes(b.ReleaseStorage())
	got, err := r.GetTime()
	if err != nil {
		t.Fatalf("GetTime: %v", err)
	}
	if !got.Equal(now) {
		t.Fatalf("GetTime = %v, want %v", got, now)
	}
	d, err := r.GetDuration()
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("GetDuration = %v, %v", d, err)
	}
}

func TestMessageBufferStringMapPreservesOrder(t *testing.T) {
	b := NewMessageBuffer()
	keys := []string{"z", "a", "m"}
	values := map[string]string{"z": "1", "a": "2", "m": "3"}
	b.PutStringMap(keys, values)

	r := NewMessageBufferFromBytes(b.ReleaseStorage())
	gotKeys, gotValues, err := r.GetStringMap()
	if err != nil {
		t.Fatalf("GetStringMap: %v", err)
	}
	if len(gotKeys) != len(keys) {
		t.Fatalf("got %d keys, want %d", len(gotKeys), len(keys))
	}
	for i, k := range keys {
		if gotKeys[i] != k {
			t.Fatalf("key order mismatch at %d: got %s, want %s", i, gotKeys[i], k)
		}
	}
	for k, v := range values {
		if gotValues[k] != v {
			t.Fatalf("value mismatch for %s: got %s, want %s", k, gotValues[k], v)
		}
	}
}
