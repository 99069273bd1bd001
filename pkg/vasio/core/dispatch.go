package core

import (
	"github.com/silkit-go/vasio/pkg/vasio/link"
	"github.com/silkit-go/vasio/pkg/vasio/types"
	"github.com/silkit-go/vasio/pkg/vasio/wire"
)

// dispatch peels the outer MsgKind tag off an inbound frame and routes it
// to the right handler. It always runs on the reactor goroutine (callers
// go through handleFrame's ExecuteDeferred hop).
func (c *Connection) dispatch(p *Peer, msg *wire.SerializedMessage) {
	switch msg.MsgKind() {
	case types.MsgKindSubscriptionAnnouncement:
		c.onSubscriptionAnnouncement(p, msg)
	case types.MsgKindSubscriptionAcknowledge:
		c.onSubscriptionAcknowledge(p, msg)
	case types.MsgKindSimMsg:
		c.onSimMessage(msg)
	case types.MsgKindRegistryMessage:
		c.onRegistryMessage(p, msg)
	default:
		c.log.Warnf("connection: unknown message kind %d from %s", msg.MsgKind(), p.ParticipantName())
	}
}

// onSubscriptionAnnouncement handles "I have a local receiver at index N
// for (network, type)" from a remote peer: it registers the peer as a
// remote receiver on the matching local VirtualLink (creating none if we
// have no local interest in that type) and replies with an acknowledge.
func (c *Connection) onSubscriptionAnnouncement(p *Peer, msg *wire.SerializedMessage) {
	sub, err := wire.DecodeVAsioMsgSubscriber(msg.Buffer())
	if err != nil {
		c.log.Warnf("connection: decoding subscription announcement from %s: %v", p.ParticipantName(), err)
		return
	}

	c.mu.Lock()
	rr, ok := c.typedLinks[linkKey(sub.NetworkName, sub.MsgTypeName)]
	c.mu.Unlock()

	status := types.SubscriptionAckFailed
	if ok {
		if adder, ok := rr.(interface {
			AddRemoteReceiver(peer link.RemoteSink, remoteIndex types.EndpointId) error
		}); ok {
			if err := adder.AddRemoteReceiver(p, sub.ReceiverIdx); err == nil {
				status = types.SubscriptionAckSuccess
			}
		}
	}

	ack := wire.NewSerializedMessage(types.MsgKindSubscriptionAcknowledge, types.RegistryMessageKindInvalid)
	wire.EncodeSubscriptionAcknowledge(ack.Buffer(), types.SubscriptionAcknowledge{Status: status, Subscriber: sub})
	frame, err := ack.ReleaseStorage()
	if err != nil {
		c.log.Errorf("connection: finalizing subscription acknowledge: %v", err)
		return
	}
	if err := p.EnqueueRaw(frame); err != nil {
		c.log.Warnf("connection: replying subscription ack to %s: %v", p.ParticipantName(), err)
	}
}

func (c *Connection) onSubscriptionAcknowledge(p *Peer, msg *wire.SerializedMessage) {
	ack, err := wire.DecodeSubscriptionAcknowledge(msg.Buffer())
	if err != nil {
		c.log.Warnf("connection: decoding subscription ack from %s: %v", p.ParticipantName(), err)
		return
	}
	if ack.Status != types.SubscriptionAckSuccess {
		c.log.Warnf("connection: %s rejected subscription for %s/%s", p.ParticipantName(), ack.Subscriber.NetworkName, ack.Subscriber.MsgTypeName)
	}
	c.resolveAck(linkKey(ack.Subscriber.NetworkName, ack.Subscriber.MsgTypeName), p.GetInfo().ParticipantId)
	if c.onSubscriptionAck != nil {
		c.onSubscriptionAck(p, ack)
	}
}

func (c *Connection) onSimMessage(msg *wire.SerializedMessage) {
	idx, err := msg.RemoteIndex()
	if err != nil {
		c.log.Errorf("connection: sim message missing remote index: %v", err)
		return
	}
	from, err := msg.EndpointAddress()
	if err != nil {
		c.log.Errorf("connection: sim message missing endpoint address: %v", err)
		return
	}
	payload, err := msg.Buffer().GetFixed(msg.Buffer().Remaining())
	if err != nil {
		c.log.Errorf("connection: reading sim message payload: %v", err)
		return
	}
	if err := c.subs.Dispatch(idx, from, payload); err != nil {
		c.log.Warnf("connection: dispatching sim message at index %d: %v", idx, err)
	}
}

// onRegistryMessage handles a registry-kind frame arriving on an already
// established peer. ParticipantAnnouncement, its reply, and
// KnownParticipants are only ever exchanged during the handshake, where
// handshake.go's AcceptPeer/announceToPeer/JoinDomain read them directly
// off the wire before AddPeer ever hands the peer to dispatch — so any
// registry-kind frame reaching here is unexpected.
func (c *Connection) onRegistryMessage(p *Peer, msg *wire.SerializedMessage) {
	c.log.Warnf("connection: unexpected registry message kind %d from %s after handshake", msg.RegistryKind(), p.ParticipantName())
}
