// Package link implements the per-(message-type, network-name) routing
// objects that fan a sent message out to local handlers and remote peers,
// and the process-wide receiver-index table that maps inbound frames back
// to the right routing object.
package link

import (
	"fmt"
	"sync"

	"github.com/silkit-go/vasio/pkg/vasio/types"
)

// RemoteSink is whatever VirtualLink uses to enqueue an outbound frame to
// one remote peer; core.Peer implements it.
type RemoteSink interface {
	ParticipantName() types.ParticipantName
	EnqueueSimMessage(remoteIndex types.EndpointId, from types.EndpointAddress, payload []byte) error
}

// LocalReceiver is a local handler registered on a VirtualLink.
type LocalReceiver[T any] func(from types.EndpointAddress, msg T)

type remoteReceiver struct {
	peer  RemoteSink
	index types.EndpointId
}

// VirtualLink routes messages of one wire type over one network name,
// fanning out to local handlers synchronously and to remote peers via
// their per-peer receiver index.
type VirtualLink[T any] struct {
	mu sync.Mutex

	networkName   string
	messageName   string
	localHandlers []LocalReceiver[T]
	remotes       []remoteReceiver

	historyLength int
	hasHistory    bool
	historyFrom   types.EndpointAddress
	historyMsg    T

	// encode/decode bind this link's message type to the matching Codec
	// functions; supplied by the Connection that owns this link since
	// serialization is type-specific.
	encode func(msg T) ([]byte, error)
	decode func([]byte) (T, error)
}

// NewVirtualLink constructs a link for one (network, messageTypeName) pair.
// encode/decode are the Codec functions for this link's message type.
func NewVirtualLink[T any](networkName, messageName string, encode func(T) ([]byte, error), decode func([]byte) (T, error)) *VirtualLink[T] {
	return &VirtualLink[T]{
		networkName: networkName,
		messageName: messageName,
		encode:      encode,
		decode:      decode,
	}
}

// DeliverRaw decodes an inbound wire payload and runs it through
// DeliverRemoteMessage; it is how SubscriptionRegistry reaches a
// type-specific VirtualLink without itself being generic.
func (l *VirtualLink[T]) DeliverRaw(from types.EndpointAddress, payload []byte) error {
	msg, err := l.decode(payload)
	if err != nil {
		return fmt.Errorf("link: decoding %s/%s: %v", l.networkName, l.messageName, err)
	}
	l.DeliverRemoteMessage(from, msg)
	return nil
}

func (l *VirtualLink[T]) NetworkName() string { return l.networkName }
func (l *VirtualLink[T]) MessageName() string { return l.messageName }

// SetHistoryLength enables (1) or disables (0) last-value replay for newly
// added remote receivers.
func (l *VirtualLink[T]) SetHistoryLength(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.historyLength = n
	if n == 0 {
		l.hasHistory = false
	}
}

func (l *VirtualLink[T]) AddLocalReceiver(h LocalReceiver[T]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.localHandlers = append(l.localHandlers, h)
}

// AddRemoteReceiver registers a (peer, remoteIndex) pair, de-duplicating
// per spec.md §4.3's invariant that a pair never appears twice. If the
// link carries history, the stored message is replayed to this receiver
// exactly once before returning.
func (l *VirtualLink[T]) AddRemoteReceiver(peer RemoteSink, remoteIndex types.EndpointId) error {
	l.mu.Lock()
	for _, r := range l.remotes {
		if r.peer == peer && r.index == remoteIndex {
			l.mu.Unlock()
			return nil
		}
	}
	l.remotes = append(l.remotes, remoteReceiver{peer: peer, index: remoteIndex})

	replay := l.hasHistory
	from := l.historyFrom
	msg := l.historyMsg
	l.mu.Unlock()

	if !replay {
		return nil
	}
	payload, err := l.encode(msg)
	if err != nil {
		return fmt.Errorf("link: encoding history replay for %s/%s: %v", l.networkName, l.messageName, err)
	}
	return peer.EnqueueSimMessage(remoteIndex, from, payload)
}

// DistributeLocalMessage is the outbound path: local handlers run inline,
// then every remote receiver gets a freshly encoded frame tagged with its
// own receiver index.
func (l *VirtualLink[T]) DistributeLocalMessage(from types.EndpointAddress, msg T) error {
	l.mu.Lock()
	handlers := append([]LocalReceiver[T](nil), l.localHandlers...)
	remotes := append([]remoteReceiver(nil), l.remotes...)
	if l.historyLength == 1 {
		l.hasHistory = true
		l.historyFrom = from
		l.historyMsg = msg
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(from, msg)
	}
	if len(remotes) == 0 {
		return nil
	}
	payload, err := l.encode(msg)
	if err != nil {
		return fmt.Errorf("link: encoding %s/%s: %v", l.networkName, l.messageName, err)
	}
	var firstErr error
	for _, r := range remotes {
		if err := r.peer.EnqueueSimMessage(r.index, from, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeliverRemoteMessage is the inbound path: local handlers run, the
// message is never re-broadcast to other peers.
func (l *VirtualLink[T]) DeliverRemoteMessage(from types.EndpointAddress, msg T) {
	l.mu.Lock()
	handlers := append([]LocalReceiver[T](nil), l.localHandlers...)
	l.mu.Unlock()

	for _, h := range handlers {
		h(from, msg)
	}
}

// DispatchToTarget sends to exactly one remote receiver, identified by the
// participant name of its owning peer. Returns ErrUnknownTarget if none
// match.
func (l *VirtualLink[T]) DispatchToTarget(from types.EndpointAddress, target types.ParticipantName, msg T) error {
	l.mu.Lock()
	var match *remoteReceiver
	for i := range l.remotes {
		if l.remotes[i].peer.ParticipantName() == target {
			match = &l.remotes[i]
			break
		}
	}
	l.mu.Unlock()

	if match == nil {
		return fmt.Errorf("link: no remote receiver for %s on %s/%s: %w", target, l.networkName, l.messageName, types.ErrUnknownTarget)
	}
	payload, err := l.encode(msg)
	if err != nil {
		return fmt.Errorf("link: encoding targeted %s/%s: %v", l.networkName, l.messageName, err)
	}
	return match.peer.EnqueueSimMessage(match.index, from, payload)
}

// RemoveRemotesForPeer drops every remote receiver belonging to peer,
// called when a Peer disconnects.
func (l *VirtualLink[T]) RemoveRemotesForPeer(peer RemoteSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.remotes[:0]
	for _, r := range l.remotes {
		if r.peer != peer {
			out = append(out, r)
		}
	}
	l.remotes = out
}
