// Package registry implements the bootstrap membership service every
// participant joins first: a specialized core.Connection that only
// accepts, tracks the current participant census, and broadcasts it to
// each newcomer.
package registry

import (
	"fmt"
	"net"
	"sync"

	"github.com/silkit-go/vasio/pkg/vasio/core"
	"github.com/silkit-go/vasio/pkg/vasio/types"
	"github.com/silkit-go/vasio/pkg/vasio/uri"
	"github.com/silkit-go/vasio/pkg/vasio/wire"
)

// Registry accepts ParticipantAnnouncement frames, answers each with the
// current KnownParticipants census, and keeps the census updated as peers
// join and leave — the accept-only specialization of Connection described
// by spec.md §4.4's "Registry view".
type Registry struct {
	log       types.Logger
	transport *core.Transport

	mu      sync.Mutex
	peers   map[types.ParticipantId]types.PeerInfo
	onEmpty func()
}

func New(log types.Logger, transport *core.Transport) *Registry {
	return &Registry{
		log:       log,
		transport: transport,
		peers:     make(map[types.ParticipantId]types.PeerInfo),
	}
}

// OnEmpty registers a callback fired once the peer list drops to zero
// after having been non-empty, matching the optional all-down future
// spec.md §4.4 describes.
func (r *Registry) OnEmpty(fn func()) { r.onEmpty = fn }

// Serve accepts connections on listener until it errors (typically
// because the listener was closed during shutdown), handling each one on
// its own goroutine. Each accepted socket becomes a core.Peer whose first
// frame is handled directly by Accept, since the registry has no
// VirtualLinks of its own to dispatch sim traffic into.
func (r *Registry) Serve(listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("registry: accept loop stopped: %w", err)
		}
		go r.Accept(core.NewPeer(conn, r.log))
	}
}

// Accept wraps one freshly accepted socket: it reads the
// ParticipantAnnouncement, records the peer, answers with
// KnownParticipants, and wires the peer's disconnect back into the
// census.
func (r *Registry) Accept(p *core.Peer) {
	p.StartAsyncWrite()
	p.StartAsyncRead(
		func(frame []byte) { r.handleFirstFrame(p, frame) },
		func(err error) { r.handleDisconnect(p, err) },
	)
}

func (r *Registry) handleFirstFrame(p *core.Peer, frame []byte) {
	msg, err := wire.ParseSerializedMessage(frame)
	if err != nil {
		r.log.Warnf("registry: parsing announcement: %v", err)
		p.Close()
		return
	}
	if msg.MsgKind() != types.MsgKindRegistryMessage || msg.RegistryKind() != types.RegistryMessageKindParticipantAnnouncement {
		r.log.Warnf("registry: expected ParticipantAnnouncement, got kind %d", msg.MsgKind())
		p.Close()
		return
	}

	header, err := wire.PeekRegistryMsgHeader(msg.Buffer())
	if err != nil {
		r.log.Warnf("registry: peeking header: %v", err)
		p.Close()
		return
	}
	version := header.ProtocolVersion()
	if !version.Unknown() && !types.ProtocolVersionSupported(version) {
		r.log.Warnf("registry: rejecting unsupported protocol version %s", version)
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
		r.log.Warnf("registry: decoding announcement: %v", err)
		p.Close()
		return
	}
	p.SetProtocolVersion(announcement.MessageHeader.ProtocolVersion())
	p.SetInfo(announcement.PeerInfo)

	if newer, err := types.NewerRelease(announcement.MessageHeader.ProtocolVersion(), types.CurrentProtocolVersion); err == nil && newer {
		r.log.Warnf("registry: participant %s announced a newer release (%s) than this registry (%s)",
			announcement.PeerInfo.ParticipantName,
			types.MapVersionToRelease(announcement.MessageHeader.ProtocolVersion()),
			types.MapVersionToRelease(types.CurrentProtocolVersion))
	}

	r.mu.Lock()
	if _, dup := r.peers[announcement.PeerInfo.ParticipantId]; dup {
		r.log.Warnf("registry: duplicate participant name %s", announcement.PeerInfo.ParticipantName)
	}
	census := r.snapshotLocked()
	r.peers[announcement.PeerInfo.ParticipantId] = announcement.PeerInfo
	r.mu.Unlock()

	kp := wire.NewSerializedMessage(types.MsgKindRegistryMessage, types.RegistryMessageKindKnownParticipants)
	wire.EncodeKnownParticipants(kp.Buffer(), types.KnownParticipants{
		MessageHeader: types.NewRegistryMsgHeader(),
		PeerInfos:     census,
	})
	frame2, err := kp.ReleaseStorage()
	if err != nil {
		r.log.Errorf("registry: finalizing known participants: %v", err)
		return
	}
	if err := p.EnqueueRaw(frame2); err != nil {
		r.log.Warnf("registry: sending known participants to %s: %v", announcement.PeerInfo.ParticipantName, err)
	}
}

func (r *Registry) snapshotLocked() []types.PeerInfo {
	out := make([]types.PeerInfo, 0, len(r.peers))
	for _, info := range r.peers {
		out = append(out, info)
	}
	return out
}

func (r *Registry) handleDisconnect(p *core.Peer, err error) {
	info := p.GetInfo()
	r.mu.Lock()
	delete(r.peers, info.ParticipantId)
	empty := len(r.peers) == 0
	r.mu.Unlock()

	r.log.Infof("registry: participant %s disconnected: %v", info.ParticipantName, err)
	if empty && r.onEmpty != nil {
		r.onEmpty()
	}
}

// ResolveLocalSocketURI derives the local IPC acceptor path from the domain
// id alone, hashing the path if it exceeds 100 bytes to stay under platform
// socket-path length limits.
func ResolveLocalSocketURI(domainID int) uri.URI {
	path := fmt.Sprintf("/tmp/vasio-registry-domain-%d.sock", domainID)
	if len(path) > 100 {
		path = fmt.Sprintf("/tmp/vasio-%x.sock", types.HashParticipantName(types.ParticipantName(path)))
	}
	u, _ := uri.Parse("local://" + path)
	return u
}
