package link

import (
	"errors"
	"sync"
	"testing"

	"github.com/silkit-go/vasio/pkg/vasio/types"
)

// fakeSink is an in-memory RemoteSink recording every enqueued frame, used
// to observe a VirtualLink's fan-out without a real Peer/socket.
type fakeSink struct {
	name types.ParticipantName

	mu    sync.Mutex
	sent  []string
	fail  bool
}

func (f *fakeSink) ParticipantName() types.ParticipantName { return f.name }

func (f *fakeSink) EnqueueSimMessage(remoteIndex types.EndpointId, from types.EndpointAddress, payload []byte) error {
	if f.fail {
		return errors.New("fake: enqueue failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, string(payload))
	return nil
}

func (f *fakeSink) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func encodeString(s string) ([]byte, error) { return []byte(s), nil }
func decodeString(b []byte) (string, error) { return string(b), nil }

func TestVirtualLinkDistributeFansOutToLocalAndRemote(t *testing.T) {
	l := NewVirtualLink[string]("CAN1", "can.FrameEvent", encodeString, decodeString)

	var gotLocal string
	l.AddLocalReceiver(func(from types.EndpointAddress, msg string) { gotLocal = msg })

	sink := &fakeSink{name: "ECU1"}
	if err := l.AddRemoteReceiver(sink, types.EndpointId(1)); err != nil {
		t.Fatalf("AddRemoteReceiver: %v", err)
	}

	if err := l.DistributeLocalMessage(types.EndpointAddress{}, "frame-a"); err != nil {
		t.Fatalf("DistributeLocalMessage: %v", err)
	}

	if gotLocal != "frame-a" {
		t.Fatalf("local handler got %q, want frame-a", gotLocal)
	}
	if got := sink.received(); len(got) != 1 || got[0] != "frame-a" {
		t.Fatalf("remote received %v, want [frame-a]", got)
	}
}

func TestVirtualLinkAddRemoteReceiverDedups(t *testing.T) {
	l := NewVirtualLink[string]("CAN1", "can.FrameEvent", encodeString, decodeString)
	sink := &fakeSink{name: "ECU1"}

	if err := l.AddRemoteReceiver(sink, types.EndpointId(1)); err != nil {
		t.Fatalf("first AddRemoteReceiver: %v", err)
	}
	if err := l.AddRemoteReceiver(sink, types.EndpointId(1)); err != nil {
		t.Fatalf("second AddRemoteReceiver: %v", err)
	}
	if len(l.remotes) != 1 {
		t.Fatalf("remotes = %d, want 1 (duplicate should be ignored)", len(l.remotes))
	}
}

func TestVirtualLinkHistoryReplaysToLateJoiner(t *testing.T) {
	l := NewVirtualLink[string]("VAsioSyncStatus", "sync.ParticipantStatus", encodeString, decodeString)
	l.SetHistoryLength(1)

	if err := l.DistributeLocalMessage(types.EndpointAddress{Participant: 1}, "running"); err != nil {
		t.Fatalf("DistributeLocalMessage: %v", err)
	}

	late := &fakeSink{name: "LateJoiner"}
	if err := l.AddRemoteReceiver(late, types.EndpointId(5)); err != nil {
		t.Fatalf("AddRemoteReceiver: %v", err)
	}

	got := late.received()
	if len(got) != 1 || got[0] != "running" {
		t.Fatalf("late joiner history replay = %v, want [running]", got)
	}
}

func TestVirtualLinkDispatchToTargetUnknownReturnsErrUnknownTarget(t *testing.T) {
	l := NewVirtualLink[string]("VAsioSyncCommand", "sync.ParticipantCommand", encodeString, decodeString)
	sink := &fakeSink{name: "ECU1"}
	if err := l.AddRemoteReceiver(sink, types.EndpointId(1)); err != nil {
		t.Fatalf("AddRemoteReceiver: %v", err)
	}

	err := l.DispatchToTarget(types.EndpointAddress{}, "NoSuchParticipant", "stop")
	if !errors.Is(err, types.ErrUnknownTarget) {
		t.Fatalf("DispatchToTarget = %v, want ErrUnknownTarget", err)
	}
}

func TestVirtualLinkDispatchToTargetSendsOnlyToMatch(t *testing.T) {
	l := NewVirtualLink[string]("VAsioSyncCommand", "sync.ParticipantCommand", encodeString, decodeString)
	a := &fakeSink{name: "ECU1"}
	b := &fakeSink{name: "ECU2"}
	l.AddRemoteReceiver(a, types.EndpointId(1))
	l.AddRemoteReceiver(b, types.EndpointId(2))

	if err := l.DispatchToTarget(types.EndpointAddress{}, "ECU2", "stop"); err != nil {
		t.Fatalf("DispatchToTarget: %v", err)
	}
	if len(a.received()) != 0 {
		t.Fatalf("ECU1 should not have received anything, got %v", a.received())
	}
	if got := b.received(); len(got) != 1 || got[0] != "stop" {
		t.Fatalf("ECU2 received %v, want [stop]", got)
	}
}

func TestVirtualLinkRemoveRemotesForPeer(t *testing.T) {
	l := NewVirtualLink[string]("CAN1", "can.FrameEvent", encodeString, decodeString)
	sink := &fakeSink{name: "ECU1"}
	l.AddRemoteReceiver(sink, types.EndpointId(1))

	l.RemoveRemotesForPeer(sink)

	if len(l.remotes) != 0 {
		t.Fatalf("remotes = %d after RemoveRemotesForPeer, want 0", len(l.remotes))
	}
}
