package types

// MsgKind tags the outermost frame of every message on a Peer connection.
type MsgKind uint8

const (
	MsgKindInvalid MsgKind = iota
	MsgKindSubscriptionAnnouncement
	MsgKindSubscriptionAcknowledge
	_ // reserved: deprecated IbMwMsg slot, never emitted
	MsgKindSimMsg
	MsgKindRegistryMessage
)

// RegistryMessageKind tags frames carried with MsgKindRegistryMessage.
type RegistryMessageKind uint8

const (
	RegistryMessageKindInvalid RegistryMessageKind = iota
	RegistryMessageKindParticipantAnnouncement
	RegistryMessageKindParticipantAnnouncementReply
	RegistryMessageKindKnownParticipants
)

// RegistryMsgHeaderPreamble is the 4-byte magic every RegistryMsgHeader
// starts with, used to reject connections from an unrelated protocol.
var RegistryMsgHeaderPreamble = [4]byte{'V', 'I', 'B', '-'}

// RegistryMsgHeader opens every ParticipantAnnouncement / KnownParticipants
// frame and carries the protocol version the sender speaks.
type RegistryMsgHeader struct {
	Preamble    [4]byte
	VersionHigh uint16
	VersionLow  uint16
}

func NewRegistryMsgHeader() RegistryMsgHeader {
	return RegistryMsgHeader{
		Preamble:    RegistryMsgHeaderPreamble,
		VersionHigh: CurrentProtocolVersion.Major,
		VersionLow:  CurrentProtocolVersion.Minor,
	}
}

func (h RegistryMsgHeader) ProtocolVersion() ProtocolVersion {
	return ProtocolVersion{Major: h.VersionHigh, Minor: h.VersionLow}
}

func (h RegistryMsgHeader) ValidPreamble() bool {
	return h.Preamble == RegistryMsgHeaderPreamble
}

// PeerInfo identifies a participant and the acceptor addresses it can be
// dialed on. AcceptorUris carries tcp:// and local:// URIs; legacy {3,0}
// peers only ever populate AcceptorHost/AcceptorPort, which wire/legacy.go
// bridges onto AcceptorUris on decode.
type PeerInfo struct {
	ParticipantName ParticipantName
	ParticipantId   ParticipantId
	AcceptorHost    string
	AcceptorPort    uint16
	AcceptorUris    []string
	Capabilities    string
}

// VAsioMsgSubscriber announces that a participant wants to receive a given
// message type on a given network, and the receiver index it should be
// addressed by for targeted remote sends.
type VAsioMsgSubscriber struct {
	ReceiverIdx EndpointId
	NetworkName string
	MsgTypeName string
	Version     uint32
}

type SubscriptionAckStatus uint8

const (
	SubscriptionAckFailed SubscriptionAckStatus = iota
	SubscriptionAckSuccess
)

// SubscriptionAcknowledge is returned for every VAsioMsgSubscriber a peer
// announced and echoes that subscriber, so the announcer matches each
// result to its request by (network name, message type name).
type SubscriptionAcknowledge struct {
	Status     SubscriptionAckStatus
	Subscriber VAsioMsgSubscriber
}

// ParticipantAnnouncement is the first frame sent on a freshly connected
// Peer, carrying the sender's identity and acceptor addresses.
type ParticipantAnnouncement struct {
	MessageHeader RegistryMsgHeader
	PeerInfo      PeerInfo
}

// ParticipantAnnouncementReply answers a ParticipantAnnouncement: whether
// the replying peer accepted the connection, and (on success) the
// subscriptions it wants serviced by the announcer. The canonical {3,1}+
// wire layout carries RemoteHeader and Status ahead of the subscriber
// vector; {3,0} peers only ever understand a bare subscriber vector (see
// wire/legacy.go), so Status can't cross the wire to them and a rejection
// is only observable there as the connection closing.
type ParticipantAnnouncementReply struct {
	RemoteHeader RegistryMsgHeader
	Status       SubscriptionAckStatus
	Subscribers  []VAsioMsgSubscriber
}

// KnownParticipants is sent by the registry to a newly joined participant,
// listing every other currently connected peer it should dial.
type KnownParticipants struct {
	MessageHeader RegistryMsgHeader
	PeerInfos     []PeerInfo
}
