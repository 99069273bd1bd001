package wire

import "github.com/silkit-go/vasio/pkg/vasio/types"

// This file holds the per-type encode/decode pairs that sit on top of
// MessageBuffer's primitives. Each pair is version-aware where the wire
// layout differs between protocol {3,0} and {3,1}; see legacy.go for the
// {3,0} compatibility branch.

func EncodeRegistryMsgHeader(b *MessageBuffer, h types.RegistryMsgHeader) {
	b.PutFixed(h.Preamble[:])
	b.PutUint16(h.VersionHigh)
	b.PutUint16(h.VersionLow)
}

func DecodeRegistryMsgHeader(b *MessageBuffer) (types.RegistryMsgHeader, error) {
	var h types.RegistryMsgHeader
	preamble, err := b.GetFixed(4)
	if err != nil {
		return h, err
	}
	copy(h.Preamble[:], preamble)
	if h.VersionHigh, err = b.GetUint16(); err != nil {
		return h, err
	}
	if h.VersionLow, err = b.GetUint16(); err != nil {
		return h, err
	}
	return h, nil
}

// EncodePeerInfo writes the canonical {3,1}+ layout: name, id, the acceptor
// URI vector, and capabilities. Legacy {3,0} encoding is handled separately
// in legacy.go since it uses a single host/port pair instead of URIs.
func EncodePeerInfo(b *MessageBuffer, p types.PeerInfo) {
	b.PutString(string(p.ParticipantName))
	b.PutUint64(uint64(p.ParticipantId))
	b.PutVectorLen(len(p.AcceptorUris))
	for _, u := range p.AcceptorUris {
		b.PutString(u)
	}
	b.PutString(p.Capabilities)
}

func DecodePeerInfo(b *MessageBuffer) (types.PeerInfo, error) {
	var p types.PeerInfo
	name, err := b.GetString()
	if err != nil {
		return p, err
	}
	id, err := b.GetUint64()
	if err != nil {
		return p, err
	}
	n, err := b.GetVectorLen()
	if err != nil {
		return p, err
	}
	uris := make([]string, 0, n)
	for i := 0; i < n; i++ {
		u, err := b.GetString()
		if err != nil {
			return p, err
		}
		uris = append(uris, u)
	}
	caps, err := b.GetString()
	if err != nil {
		return p, err
	}
	p.ParticipantName = types.ParticipantName(name)
	p.ParticipantId = types.ParticipantId(id)
	p.AcceptorUris = uris
	p.Capabilities = caps
	return p, nil
}

func EncodeVAsioMsgSubscriber(b *MessageBuffer, s types.VAsioMsgSubscriber) {
	b.PutUint64(uint64(s.ReceiverIdx))
	b.PutString(s.NetworkName)
	b.PutString(s.MsgTypeName)
	b.PutUint32(s.Version)
}

func DecodeVAsioMsgSubscriber(b *MessageBuffer) (types.VAsioMsgSubscriber, error) {
	var s types.VAsioMsgSubscriber
	idx, err := b.GetUint64()
	if err != nil {
		return s, err
	}
	network, err := b.GetString()
	if err != nil {
		return s, err
	}
	msgType, err := b.GetString()
	if err != nil {
		return s, err
	}
	version, err := b.GetUint32()
	if err != nil {
		return s, err
	}
	s.ReceiverIdx = types.EndpointId(idx)
	s.NetworkName = network
	s.MsgTypeName = msgType
	s.Version = version
	return s, nil
}

func EncodeSubscriptionAcknowledge(b *MessageBuffer, a types.SubscriptionAcknowledge) {
	b.PutEnum(uint8(a.Status))
	EncodeVAsioMsgSubscriber(b, a.Subscriber)
}

func DecodeSubscriptionAcknowledge(b *MessageBuffer) (types.SubscriptionAcknowledge, error) {
	var a types.SubscriptionAcknowledge
	status, err := b.GetEnum()
	if err != nil {
		return a, err
	}
	sub, err := DecodeVAsioMsgSubscriber(b)
	if err != nil {
		return a, err
	}
	a.Status = types.SubscriptionAckStatus(status)
	a.Subscriber = sub
	return a, nil
}

func EncodeParticipantAnnouncement(b *MessageBuffer, a types.ParticipantAnnouncement) {
	EncodeRegistryMsgHeader(b, a.MessageHeader)
	EncodePeerInfo(b, a.PeerInfo)
}

func DecodeParticipantAnnouncement(b *MessageBuffer) (types.ParticipantAnnouncement, error) {
	var a types.ParticipantAnnouncement
	header, err := DecodeRegistryMsgHeader(b)
	if err != nil {
		return a, err
	}
	a.MessageHeader = header

	v := header.ProtocolVersion()
	var peer types.PeerInfo
	if v == (types.ProtocolVersion{Major: 3, Minor: 0}) {
		peer, err = decodePeerInfoV30(b)
	} else {
		peer, err = DecodePeerInfo(b)
	}
	if err != nil {
		return a, err
	}
	a.PeerInfo = peer
	return a, nil
}

// EncodeParticipantAnnouncementReply writes the canonical {3,1}+ reply
// layout: RemoteHeader, then status, then the subscriber vector. {3,0}
// repliers use EncodeParticipantAnnouncementReplyV30 instead (see
// legacy.go), since a {3,0} announcer has no way to parse either of the
// leading fields.
func EncodeParticipantAnnouncementReply(b *MessageBuffer, r types.ParticipantAnnouncementReply) {
	EncodeRegistryMsgHeader(b, r.RemoteHeader)
	b.PutEnum(uint8(r.Status))
	b.PutVectorLen(len(r.Subscribers))
	for _, s := range r.Subscribers {
		EncodeVAsioMsgSubscriber(b, s)
	}
}

// DecodeParticipantAnnouncementReply decodes the canonical {3,1}+ layout.
// This implementation always announces at CurrentProtocolVersion, so it
// only ever receives replies in this layout back. legacy.go holds only the
// {3,0} encode side (EncodeParticipantAnnouncementReplyV30); there is no
// {3,0} reply decoder.
func DecodeParticipantAnnouncementReply(b *MessageBuffer) (types.ParticipantAnnouncementReply, error) {
	var r types.ParticipantAnnouncementReply
	header, err := DecodeRegistryMsgHeader(b)
	if err != nil {
		return r, err
	}
	r.RemoteHeader = header
	status, err := b.GetEnum()
	if err != nil {
		return r, err
	}
	r.Status = types.SubscriptionAckStatus(status)
	n, err := b.GetVectorLen()
	if err != nil {
		return r, err
	}
	subs := make([]types.VAsioMsgSubscriber, 0, n)
	for i := 0; i < n; i++ {
		s, err := DecodeVAsioMsgSubscriber(b)
		if err != nil {
			return r, err
		}
		subs = append(subs, s)
	}
	r.Subscribers = subs
	return r, nil
}

func EncodeKnownParticipants(b *MessageBuffer, k types.KnownParticipants) {
	EncodeRegistryMsgHeader(b, k.MessageHeader)
	b.PutVectorLen(len(k.PeerInfos))
	for _, p := range k.PeerInfos {
		EncodePeerInfo(b, p)
	}
}

func DecodeKnownParticipants(b *MessageBuffer) (types.KnownParticipants, error) {
	var k types.KnownParticipants
	header, err := DecodeRegistryMsgHeader(b)
	if err != nil {
		return k, err
	}
	k.MessageHeader = header

	n, err := b.GetVectorLen()
	if err != nil {
		return k, err
	}
	v := header.ProtocolVersion()
	peers := make([]types.PeerInfo, 0, n)
	for i := 0; i < n; i++ {
		var p types.PeerInfo
		if v == (types.ProtocolVersion{Major: 3, Minor: 0}) {
			p, err = decodePeerInfoV30(b)
		} else {
			p, err = DecodePeerInfo(b)
		}
		if err != nil {
			return k, err
		}
		peers = append(peers, p)
	}
	k.PeerInfos = peers
	return k, nil
}
