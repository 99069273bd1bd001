package registry

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/silkit-go/vasio/pkg/vasio/core"
	"github.com/silkit-go/vasio/pkg/vasio/logging"
	"github.com/silkit-go/vasio/pkg/vasio/sim/can"
	"github.com/silkit-go/vasio/pkg/vasio/types"
	"github.com/silkit-go/vasio/pkg/vasio/uri"
	"github.com/silkit-go/vasio/pkg/vasio/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startRegistry(t *testing.T) (uri.URI, *Registry, net.Listener) {
	t.Helper()
	log := logging.New("registry")
	transport := core.NewTransport(true, false)
	reg := New(log, transport)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	go reg.Serve(listener)

	u, err := uri.Parse("tcp://" + listener.Addr().String())
	if err != nil {
		t.Fatalf("parsing registry uri: %v", err)
	}
	return u, reg, listener
}

func newJoinedParticipant(t *testing.T, name string, regURI uri.URI) *core.Connection {
	t.Helper()
	log := logging.New(name)
	transport := core.NewTransport(true, false)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("opening acceptor for %s: %v", name, err)
	}
	t.Cleanup(func() { listener.Close() })

	localInfo := types.PeerInfo{
		ParticipantName: types.ParticipantName(name),
		ParticipantId:   types.HashParticipantName(types.ParticipantName(name)),
		AcceptorUris:    []string{"tcp://" + listener.Addr().String()},
	}
	conn := core.NewConnection(localInfo, transport, log)

	go func() {
		for {
			nc, err := listener.Accept()
			if err != nil {
				return
			}
			conn.AcceptPeer(core.NewPeer(nc, log))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := core.JoinDomain(ctx, conn, regURI); err != nil {
		t.Fatalf("%s joining domain: %v", name, err)
	}
	return conn
}

func TestTwoParticipantsJoinAndExchangeCanFrames(t *testing.T) {
	regURI, _, listener := startRegistry(t)
	defer listener.Close()

	sender := newJoinedParticipant(t, "Sender", regURI)
	defer sender.Shutdown()

	// Sender's own CAN1 link must exist before Receiver joins and announces
	// its matching subscription, since a subscription announcement only
	// registers a remote receiver against an already-existing local link.
	sendLink := can.Link(sender, "CAN1")

	received := make(chan can.FrameEvent, 1)
	receiver := newJoinedParticipant(t, "Receiver", regURI)
	defer receiver.Shutdown()

	// can.Link's registration blocks until every already-connected peer
	// (here, just Sender) has acknowledged the subscription, so by the
	// time this call returns Sender has already registered Receiver as a
	// remote receiver on CAN1 — no sleep needed before distributing.
	recvLink := can.Link(receiver, "CAN1")
	recvLink.AddLocalReceiver(func(from types.EndpointAddress, msg can.FrameEvent) {
		received <- msg
	})

	want := can.FrameEvent{CanID: 0x7FF, Data: []byte{9, 9, 9}}
	sender.ExecuteDeferred(func() {
		if err := sendLink.DistributeLocalMessage(types.EndpointAddress{}, want); err != nil {
			t.Errorf("DistributeLocalMessage: %v", err)
		}
	})

	select {
	case got := <-received:
		if got.CanID != want.CanID || string(got.Data) != string(want.Data) {
			t.Fatalf("received %+v, want %+v", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for CAN frame to cross the registry-mediated domain")
	}
}

func TestRegistryRejectsUnsupportedProtocolVersion(t *testing.T) {
	regURI, _, listener := startRegistry(t)
	defer listener.Close()

	host, err := regURI.Host()
	if err != nil {
		t.Fatalf("registry host: %v", err)
	}
	addr := fmt.Sprintf("%s:%d", host, regURI.Port())
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dialing registry: %v", err)
	}
	defer conn.Close()

	// A bogus, clearly-unsupported version (9.9) ahead of a minimal
	// announcement payload should be rejected rather than crash the
	// registry's accept loop.
	frame := buildMinimalAnnouncement(t, types.ProtocolVersion{Major: 9, Minor: 9})
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("writing bogus announcement: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	if err == nil {
		t.Fatal("expected the registry to close the connection on an unsupported version")
	}
}

// buildMinimalAnnouncement encodes a ParticipantAnnouncement frame carrying
// an arbitrary protocol version, to exercise the registry's version gate
// before any real peer machinery is involved.
func buildMinimalAnnouncement(t *testing.T, version types.ProtocolVersion) []byte {
	t.Helper()
	header := types.RegistryMsgHeader{
		Preamble:    types.RegistryMsgHeaderPreamble,
		VersionHigh: version.Major,
		VersionLow:  version.Minor,
	}
	msg := wire.NewSerializedMessage(types.MsgKindRegistryMessage, types.RegistryMessageKindParticipantAnnouncement)
	wire.EncodeParticipantAnnouncement(msg.Buffer(), types.ParticipantAnnouncement{
		MessageHeader: header,
		PeerInfo: types.PeerInfo{
			ParticipantName: "Bogus",
			ParticipantId:   types.HashParticipantName("Bogus"),
			AcceptorUris:    []string{"tcp://127.0.0.1:1"},
		},
	})
	frame, err := msg.ReleaseStorage()
	if err != nil {
		t.Fatalf("building minimal announcement: %v", err)
	}
	return frame
}
