package wire

import "github.com/silkit-go/vasio/pkg/vasio/types"

// decodePeerInfoV30 reads the {3,0} PeerInfo layout: a single acceptorHost
// string and an acceptorPort, with no URI vector and no capabilities
// field. It is synthesized into the canonical PeerInfo shape by folding
// host/port into a single tcp:// entry in AcceptorUris, so link/core code
// never has to branch on protocol version again after decode.
func decodePeerInfoV30(b *MessageBuffer) (types.PeerInfo, error) {
	var p types.PeerInfo
	name, err := b.GetString()
	if err != nil {
		return p, err
	}
	id, err := b.GetUint64()
	if err != nil {
		return p, err
	}
	host, err := b.GetString()
	if err != nil {
		return p, err
	}
	port, err := b.GetUint16()
	if err != nil {
		return p, err
	}

	p.ParticipantName = types.ParticipantName(name)
	p.ParticipantId = types.ParticipantId(id)
	p.AcceptorHost = host
	p.AcceptorPort = port
	p.AcceptorUris = []string{"tcp://" + host + ":" + portToString(port)}
	return p, nil
}

// encodePeerInfoV30 is the encode-side mirror of decodePeerInfoV30. Nothing
// in this module calls it: announcements and KnownParticipants are always
// written with the canonical EncodePeerInfo layout.
func encodePeerInfoV30(b *MessageBuffer, p types.PeerInfo) {
	b.PutString(string(p.ParticipantName))
	b.PutUint64(uint64(p.ParticipantId))
	b.PutString(p.AcceptorHost)
	b.PutUint16(p.AcceptorPort)
}

// EncodeParticipantAnnouncementReplyV30 writes the {3,0} legacy reply
// layout: a bare subscriber vector, with no RemoteHeader or status field.
// Used when replying to a peer that announced protocol {3,0}, which has
// no way to parse either of the canonical layout's leading fields; a
// rejection is communicated to such a peer only by closing the connection
// (see core.Connection.handleFirstFrame), never by a status value.
func EncodeParticipantAnnouncementReplyV30(b *MessageBuffer, r types.ParticipantAnnouncementReply) {
	b.PutVectorLen(len(r.Subscribers))
	for _, s := range r.Subscribers {
		EncodeVAsioMsgSubscriber(b, s)
	}
}

func portToString(port uint16) string {
	const digits = "0123456789"
	if port == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for port > 0 {
		i--
		buf[i] = digits[port%10]
		port /= 10
	}
	return string(buf[i:])
}

// DecodeParticipantAnnouncementAdaptive handles a peer whose RegistryMsgHeader
// carries {0,0} — meaning it predates version negotiation entirely. Per
// spec.md §9(c) this is resolved by trying the current layout first and
// falling back to the {3,0} layout if that decode fails, rather than
// rejecting the connection outright. raw is the complete frame, starting at
// its size prefix, as Peer's read pump delivers it.
func DecodeParticipantAnnouncementAdaptive(raw []byte) (types.ParticipantAnnouncement, error) {
	try := func(decodePeer func(*MessageBuffer) (types.PeerInfo, error)) (types.ParticipantAnnouncement, error) {
		var a types.ParticipantAnnouncement
		msg, err := ParseSerializedMessage(raw)
		if err != nil {
			return a, err
		}
		b := msg.Buffer()
		header, err := DecodeRegistryMsgHeader(b)
		if err != nil {
			return a, err
		}
		peer, err := decodePeer(b)
		if err != nil {
			return a, err
		}
		a.MessageHeader = header
		a.PeerInfo = peer
		return a, nil
	}

	if a, err := try(DecodePeerInfo); err == nil {
		return a, nil
	}
	return try(decodePeerInfoV30)
}
