package core

import (
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/silkit-go/vasio/pkg/vasio/logging"
	"github.com/silkit-go/vasio/pkg/vasio/sim/can"
	"github.com/silkit-go/vasio/pkg/vasio/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestConnection(name string) *Connection {
	log := logging.New(name)
	info := types.PeerInfo{
		ParticipantName: types.ParticipantName(name),
		ParticipantId:   types.HashParticipantName(types.ParticipantName(name)),
	}
	return NewConnection(info, NewTransport(true, false), log)
}

// wireDirectly connects two Connections over an in-memory net.Pipe, skipping
// JoinDomain/AcceptPeer's URI dialing — this exercises AddPeer, subscription
// announcement fan-out, and peer-loss cleanup in isolation.
func wireDirectly(t *testing.T, a, b *Connection) {
	t.Helper()
	connA, connB := net.Pipe()

	peerOfB := NewPeer(connA, logging.New("a-side"))
	peerOfB.SetInfo(b.LocalInfo())
	peerOfA := NewPeer(connB, logging.New("b-side"))
	peerOfA.SetInfo(a.LocalInfo())

	done := make(chan struct{})
	a.ExecuteDeferred(func() { a.AddPeer(peerOfB); close(done) })
	<-done
	done = make(chan struct{})
	b.ExecuteDeferred(func() { b.AddPeer(peerOfA); close(done) })
	<-done
}

func TestConnectionSubscriptionFanOutDeliversAcrossPeers(t *testing.T) {
	a := newTestConnection("Sender")
	b := newTestConnection("Receiver")
	defer a.Shutdown()
	defer b.Shutdown()

	wireDirectly(t, a, b)

	// a's CAN1 link must exist before b announces its matching
	// subscription, since an announcement only registers a remote
	// receiver against an already-existing local link.
	linkA := can.Link(a, "CAN1")

	received := make(chan can.FrameEvent, 1)
	// can.Link's registration blocks until every already-connected peer
	// (here, just a) has acknowledged the subscription, so by the time
	// this call returns a has already registered b as a remote receiver
	// on CAN1 — no sleep needed before distributing.
	linkB := can.Link(b, "CAN1")
	linkB.AddLocalReceiver(func(from types.EndpointAddress, msg can.FrameEvent) {
		received <- msg
	})

	want := can.FrameEvent{CanID: 0x42, Data: []byte{1, 2, 3}}
	a.ExecuteDeferred(func() {
		if err := linkA.DistributeLocalMessage(types.EndpointAddress{}, want); err != nil {
			t.Errorf("DistributeLocalMessage: %v", err)
		}
	})

	select {
	case got := <-received:
		if got.CanID != want.CanID || string(got.Data) != string(want.Data) {
			t.Fatalf("received %+v, want %+v", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for fan-out delivery")
	}
}

func TestConnectionPeerLostFiresCallback(t *testing.T) {
	a := newTestConnection("Sender")
	b := newTestConnection("Receiver")
	defer a.Shutdown()

	lost := make(chan types.ParticipantName, 1)
	a.OnPeerLost(func(id types.ParticipantId, name types.ParticipantName, err error) {
		lost <- name
	})

	wireDirectly(t, a, b)
	b.Shutdown()

	select {
	case name := <-lost:
		if name != "Receiver" {
			t.Fatalf("lost peer = %s, want Receiver", name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for onPeerLost")
	}
}
