package wire

import (
	"testing"

	"github.com/silkit-go/vasio/pkg/vasio/types"
)

func TestSerializedMessageRegistryRoundTrip(t *testing.T) {
	msg := NewSerializedMessage(types.MsgKindRegistryMessage, types.RegistryMessageKindKnownParticipants)
	msg.Buffer().PutString("payload")
	frame, err := msg.ReleaseStorage()
	if err != nil {
		t.Fatalf("ReleaseStorage: %v", err)
	}

	parsed, err := ParseSerializedMessage(frame)
	if err != nil {
		t.Fatalf("ParseSerializedMessage: %v", err)
	}
	if parsed.MsgKind() != types.MsgKindRegistryMessage {
		t.Fatalf("MsgKind = %v", parsed.MsgKind())
	}
	if parsed.RegistryKind() != types.RegistryMessageKindKnownParticipants {
		t.Fatalf("RegistryKind = %v", parsed.RegistryKind())
	}
	if _, err := parsed.RemoteIndex(); err == nil {
		t.Fatal("expected RemoteIndex to fail on a non-sim message")
	}

	payload, err := parsed.Buffer().GetString()
	if err != nil || payload != "payload" {
		t.Fatalf("payload = %q, %v", payload, err)
	}
}

func TestSerializedMessageSimRoundTrip(t *testing.T) {
	endpoint := types.EndpointAddress{Participant: 42, Endpoint: 7}
	msg := NewSimSerializedMessage(types.EndpointId(3), endpoint)
	msg.Buffer().PutFixed([]byte("frame-bytes"))
	frame, err := msg.ReleaseStorage()
	if err != nil {
		t.Fatalf("ReleaseStorage: %v", err)
	}

	parsed, err := ParseSerializedMessage(frame)
	if err != nil {
		t.Fatalf("ParseSerializedMessage: %v", err)
	}
	if parsed.MsgKind() != types.MsgKindSimMsg {
		t.Fatalf("MsgKind = %v", parsed.MsgKind())
	}
	idx, err := parsed.RemoteIndex()
	if err != nil || idx != types.EndpointId(3) {
		t.Fatalf("RemoteIndex = %v, %v", idx, err)
	}
	addr, err := parsed.EndpointAddress()
	if err != nil || addr != endpoint {
		t.Fatalf("EndpointAddress = %v, %v", addr, err)
	}
	rest, err := parsed.Buffer().GetFixed(len("frame-bytes"))
	if err != nil || string(rest) != "frame-bytes" {
		t.Fatalf("payload = %q, %v", rest, err)
	}
}

func TestPeekRegistryMsgHeaderDoesNotConsume(t *testing.T) {
	header := types.NewRegistryMsgHeader()
	b := NewMessageBuffer()
	EncodeRegistryMsgHeader(b, header)
	b.PutString("untouched")

	r := NewMessageBufferFromBytes(b.ReleaseStorage())
	before := r.Remaining()

	peeked, err := PeekRegistryMsgHeader(r)
	if err != nil {
		t.Fatalf("PeekRegistryMsgHeader: %v", err)
	}
	if !peeked.ValidPreamble() {
		t.Fatal("expected a valid preamble")
	}
	if r.Remaining() != before {
		t.Fatalf("peek consumed bytes: remaining %d, want %d", r.Remaining(), before)
	}

	decoded, err := DecodeRegistryMsgHeader(r)
	if err != nil {
		t.Fatalf("DecodeRegistryMsgHeader: %v", err)
	}
	if decoded != header {
		t.Fatalf("decoded header = %+v, want %+v", decoded, header)
	}
	rest, err := r.GetString()
	if err != nil || rest != "untouched" {
		t.Fatalf("payload after header = %q, %v", rest, err)
	}
}
