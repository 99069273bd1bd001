package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/silkit-go/vasio/pkg/vasio/link"
	"github.com/silkit-go/vasio/pkg/vasio/types"
	"github.com/silkit-go/vasio/pkg/vasio/uri"
	"github.com/silkit-go/vasio/pkg/vasio/wire"
)

// JoinDomain runs the client side of spec.md §4.4's handshake: connect to
// the registry, announce ourselves, wait for the census, then connect to
// and announce ourselves to every known peer. It returns once every
// reachable peer has replied or the 5s handshake budget elapses.
func JoinDomain(ctx context.Context, c *Connection, registryURI uri.URI) error {
	registryPeer, err := DialPeer(ctx, c.transport, types.PeerInfo{
		ParticipantName: "Registry",
		ParticipantId:   types.RegistryParticipantId,
		AcceptorUris:    []string{registryURI.String()},
	}, c.log)
	if err != nil {
		return fmt.Errorf("core: joining domain: %w", err)
	}

	known := make(chan types.KnownParticipants, 1)
	failed := make(chan error, 1)

	registryPeer.StartAsyncWrite()
	registryPeer.StartAsyncRead(
		func(frame []byte) {
			msg, err := wire.ParseSerializedMessage(frame)
			if err != nil {
				failed <- fmt.Errorf("core: parsing registry reply: %w", err)
				return
			}
			if msg.MsgKind() != types.MsgKindRegistryMessage || msg.RegistryKind() != types.RegistryMessageKindKnownParticipants {
				return
			}
			kp, err := wire.DecodeKnownParticipants(msg.Buffer())
			if err != nil {
				failed <- fmt.Errorf("core: decoding known participants: %w", err)
				return
			}
			header := kp.MessageHeader
			if !header.ProtocolVersion().Unknown() && !types.ProtocolVersionSupported(header.ProtocolVersion()) {
				failed <- fmt.Errorf("core: registry speaks unsupported protocol %s: %w", header.ProtocolVersion(), types.ErrProtocol)
				return
			}
			known <- kp
		},
		func(err error) { failed <- fmt.Errorf("core: registry connection lost: %w", err) },
	)

	announcement := wire.NewSerializedMessage(types.MsgKindRegistryMessage, types.RegistryMessageKindParticipantAnnouncement)
	wire.EncodeParticipantAnnouncement(announcement.Buffer(), types.ParticipantAnnouncement{
		MessageHeader: types.NewRegistryMsgHeader(),
		PeerInfo:      c.localInfo,
	})
	frame, err := announcement.ReleaseStorage()
	if err != nil {
		return fmt.Errorf("core: announcing to registry: %w", err)
	}
	if err := registryPeer.EnqueueRaw(frame); err != nil {
		return fmt.Errorf("core: announcing to registry: %w", err)
	}

	return WaitHandshake(ctx, func() <-chan error {
		done := make(chan error, 1)
		go func() {
			select {
			case kp := <-known:
				c.joinPeers(ctx, kp)
				done <- nil
			case err := <-failed:
				c.log.Warnf("core: handshake failed: %v", err)
				done <- err
			case <-ctx.Done():
				done <- ctx.Err()
			}
		}()
		return done
	})
}

// joinPeers connects to every participant in a KnownParticipants census
// and announces ourselves to each, tracking replies until every pending
// peer has answered or failed, per spec.md §4.4 steps 5-7.
func (c *Connection) joinPeers(ctx context.Context, kp types.KnownParticipants) {
	var wg sync.WaitGroup
	for _, info := range kp.PeerInfos {
		if info.ParticipantId == c.localInfo.ParticipantId {
			continue
		}
		wg.Add(1)
		go func(info types.PeerInfo) {
			defer wg.Done()
			if err := c.announceToPeer(ctx, info); err != nil {
				c.log.Warnf("core: joining peer %s: %v", info.ParticipantName, err)
			}
		}(info)
	}
	wg.Wait()
}

func (c *Connection) announceToPeer(ctx context.Context, info types.PeerInfo) error {
	peer, err := DialPeer(ctx, c.transport, info, c.log)
	if err != nil {
		return err
	}

	replied := make(chan struct{})
	var replyOnce sync.Once
	peer.StartAsyncWrite()
	peer.StartAsyncRead(
		func(frame []byte) {
			msg, err := wire.ParseSerializedMessage(frame)
			if err != nil {
				c.log.Warnf("core: parsing reply from %s: %v", info.ParticipantName, err)
				return
			}
			if msg.MsgKind() == types.MsgKindRegistryMessage && msg.RegistryKind() == types.RegistryMessageKindParticipantAnnouncementReply {
				reply, err := wire.DecodeParticipantAnnouncementReply(msg.Buffer())
				if err != nil {
					c.log.Warnf("core: decoding reply from %s: %v", info.ParticipantName, err)
					peer.Close()
					return
				}
				if reply.Status != types.SubscriptionAckSuccess {
					c.log.Warnf("core: %s rejected our participant announcement", info.ParticipantName)
					peer.Close()
					return
				}
				for _, sub := range reply.Subscribers {
					c.registerRemoteSubscriber(peer, sub)
				}
				c.ExecuteDeferred(func() { c.AddPeer(peer); replyOnce.Do(func() { close(replied) }) })
				return
			}
			c.handleFrame(peer, frame)
		},
		func(err error) { c.handlePeerLost(info.ParticipantId, info.ParticipantName, err) },
	)
	peer.SetInfo(info)
	peer.SetProtocolVersion(types.CurrentProtocolVersion)

	announcement := wire.NewSerializedMessage(types.MsgKindRegistryMessage, types.RegistryMessageKindParticipantAnnouncement)
	wire.EncodeParticipantAnnouncement(announcement.Buffer(), types.ParticipantAnnouncement{
		MessageHeader: types.NewRegistryMsgHeader(),
		PeerInfo:      c.localInfo,
	})
	frame, err := announcement.ReleaseStorage()
	if err != nil {
		return err
	}
	if err := peer.EnqueueRaw(frame); err != nil {
		return err
	}
	select {
	case <-replied:
		return nil
	case <-peer.Done():
		return fmt.Errorf("core: %s closed the connection before a successful reply: %w", info.ParticipantName, types.ErrConnectionLost)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) registerRemoteSubscriber(p *Peer, sub types.VAsioMsgSubscriber) {
	c.mu.Lock()
	rr, ok := c.typedLinks[linkKey(sub.NetworkName, sub.MsgTypeName)]
	c.mu.Unlock()
	if !ok {
		return
	}
	if adder, ok := rr.(interface {
		AddRemoteReceiver(peer link.RemoteSink, remoteIndex types.EndpointId) error
	}); ok {
		_ = adder.AddRemoteReceiver(p, sub.ReceiverIdx)
	}
}

// AcceptPeer runs the server-side half of spec.md §4.4: peek the
// RegistryMsgHeader before committing to a full decode, reject
// unsupported versions with a negative reply, and otherwise record the
// peer and answer with our own subscriber list.
func (c *Connection) AcceptPeer(p *Peer) {
	p.StartAsyncWrite()
	p.StartAsyncRead(
		func(frame []byte) { c.handleFirstFrame(p, frame) },
		func(err error) {
			info := p.GetInfo()
			c.handlePeerLost(info.ParticipantId, info.ParticipantName, err)
		},
	)
}

func (c *Connection) handleFirstFrame(p *Peer, frame []byte) {
	msg, err := wire.ParseSerializedMessage(frame)
	if err != nil {
		c.log.Warnf("core: parsing first frame from new peer: %v", err)
		p.Close()
		return
	}
	if msg.MsgKind() != types.MsgKindRegistryMessage || msg.RegistryKind() != types.RegistryMessageKindParticipantAnnouncement {
		c.log.Warnf("core: expected ParticipantAnnouncement as first frame, got kind %d", msg.MsgKind())
		p.Close()
		return
	}

	header, err := wire.PeekRegistryMsgHeader(msg.Buffer())
	if err != nil {
		c.log.Warnf("core: peeking registry header: %v", err)
		p.Close()
		return
	}
	version := header.ProtocolVersion()
	if !version.Unknown() && !types.ProtocolVersionSupported(version) {
		c.replyAnnouncement(p, types.SubscriptionAckFailed, nil)
		p.Close()
		return
	}

	var announcement types.ParticipantAnnouncement
	if version.Unknown() {
		announcement, err = wire.DecodeParticipantAnnouncementAdaptive(frame)
	} else {
		announcement, err = wire.DecodeParticipantAnnouncement(msg.Buffer())
	}
	if err != nil {
		c.log.Warnf("core: decoding participant announcement: %v", err)
		p.Close()
		return
	}

	p.SetProtocolVersion(announcement.MessageHeader.ProtocolVersion())
	p.SetInfo(announcement.PeerInfo)

	c.mu.Lock()
	_, duplicate := c.peers[announcement.PeerInfo.ParticipantId]
	c.mu.Unlock()
	if duplicate {
		// spec.md §9(b): a repeated participant name/id is treated as a
		// ProtocolError in this rewrite rather than silently replacing
		// the existing peer.
		c.log.Errorf("core: duplicate participant %s: %v", announcement.PeerInfo.ParticipantName, types.ErrProtocol)
		c.replyAnnouncement(p, types.SubscriptionAckFailed, nil)
		p.Close()
		return
	}

	c.ExecuteDeferred(func() { c.AddPeer(p) })
	c.replyAnnouncement(p, types.SubscriptionAckSuccess, c.localSubscriberDescriptors())
}

// replyAnnouncement answers a ParticipantAnnouncement with status (success
// or failure) and, on success, our own subscriber list. p's protocol
// version was just set from the announcement we're replying to, so it
// tells us which reply dialect the announcer can parse: {3,0} peers only
// ever understand the bare-subscribers legacy layout, where a rejection
// can only be communicated by closing the connection afterward.
func (c *Connection) replyAnnouncement(p *Peer, status types.SubscriptionAckStatus, subs []types.VAsioMsgSubscriber) {
	reply := wire.NewSerializedMessage(types.MsgKindRegistryMessage, types.RegistryMessageKindParticipantAnnouncementReply)
	body := types.ParticipantAnnouncementReply{
		RemoteHeader: types.NewRegistryMsgHeader(),
		Status:       status,
	}
	if status == types.SubscriptionAckSuccess {
		body.Subscribers = subs
	}
	if p.GetProtocolVersion() == (types.ProtocolVersion{Major: 3, Minor: 0}) {
		wire.EncodeParticipantAnnouncementReplyV30(reply.Buffer(), body)
	} else {
		wire.EncodeParticipantAnnouncementReply(reply.Buffer(), body)
	}
	frame, err := reply.ReleaseStorage()
	if err != nil {
		c.log.Errorf("core: finalizing announcement reply: %v", err)
		return
	}
	if err := p.EnqueueRaw(frame); err != nil {
		c.log.Warnf("core: sending announcement reply: %v", err)
	}
}

func (c *Connection) localSubscriberDescriptors() []types.VAsioMsgSubscriber {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := make([]types.VAsioMsgSubscriber, 0, len(c.typedLinks))
	for _, v := range c.typedLinks {
		rr := v.(link.RawReceiver)
		idx, _ := c.subs.Lookup(rr.NetworkName(), rr.MessageName())
		subs = append(subs, types.VAsioMsgSubscriber{
			ReceiverIdx: idx,
			NetworkName: rr.NetworkName(),
			MsgTypeName: rr.MessageName(),
		})
	}
	return subs
}
