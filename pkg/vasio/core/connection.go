package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/silkit-go/vasio/pkg/vasio/link"
	"github.com/silkit-go/vasio/pkg/vasio/types"
	"github.com/silkit-go/vasio/pkg/vasio/wire"
)

// Connection owns one participant's reactor, its peer table, its
// VirtualLink tables and SubscriptionRegistry. Controllers obtain typed
// links through GetOrCreateLink/GetOrCreateLinkAsync and post work onto
// the reactor goroutine through ExecuteDeferred.
type Connection struct {
	log       types.Logger
	transport *Transport
	reactor   *Reactor

	localInfo types.PeerInfo

	mu         sync.Mutex
	peers      map[types.ParticipantId]*Peer
	subs       *link.SubscriptionRegistry
	typedLinks map[string]any
	ackWaiters map[string]*ackWaiter

	// onPeerLost is fired on the reactor goroutine with the departed
	// peer's id, name and error whenever a peer disconnects; set through
	// OnPeerLost (cmd/participant uses it to publish a lifecycle status).
	onPeerLost func(id types.ParticipantId, name types.ParticipantName, err error)

	// onSubscriptionAck is an optional, externally settable observer of
	// every subscription acknowledge a peer sends back; resolveAck's
	// ack-wait bookkeeping runs regardless of whether this is set.
	onSubscriptionAck func(p *Peer, ack types.SubscriptionAcknowledge)
}

func NewConnection(localInfo types.PeerInfo, transport *Transport, log types.Logger) *Connection {
	return &Connection{
		log:        log,
		transport:  transport,
		reactor:    NewReactor(),
		localInfo:  localInfo,
		peers:      make(map[types.ParticipantId]*Peer),
		subs:       link.NewSubscriptionRegistry(),
		typedLinks: make(map[string]any),
		ackWaiters: make(map[string]*ackWaiter),
	}
}

func (c *Connection) Reactor() *Reactor { return c.reactor }
func (c *Connection) LocalInfo() types.PeerInfo { return c.localInfo }

func (c *Connection) OnPeerLost(fn func(id types.ParticipantId, name types.ParticipantName, err error)) {
	c.onPeerLost = fn
}

func (c *Connection) OnSubscriptionAck(fn func(p *Peer, ack types.SubscriptionAcknowledge)) {
	c.onSubscriptionAck = fn
}

// Peers returns a snapshot of the currently connected peer table, keyed by
// participant id. Safe to call from any goroutine.
func (c *Connection) Peers() map[types.ParticipantId]*Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[types.ParticipantId]*Peer, len(c.peers))
	for k, v := range c.peers {
		out[k] = v
	}
	return out
}

// ExecuteDeferred exposes the reactor's re-entrant posting primitive to
// callers outside this package, defaulting to a fresh (unmarked)
// background context so top-level calls always hop onto the reactor
// goroutine exactly once.
func (c *Connection) ExecuteDeferred(fn func()) {
	c.reactor.ExecuteDeferred(context.Background(), func(ctx context.Context) {
		fn()
	})
}

func linkKey(networkName, messageTypeName string) string {
	return networkName + "\x00" + messageTypeName
}

// ackWaiter tracks the set of already-connected peers a freshly allocated
// link's subscription announcement was sent to, closing done once every
// one of them has acknowledged (or been dropped from the pending set by a
// disconnect — see Connection.handlePeerLost).
type ackWaiter struct {
	mu      sync.Mutex
	pending map[types.ParticipantId]struct{}
	done    chan struct{}
	closed  bool
}

func newAckWaiter(peerIDs []types.ParticipantId) *ackWaiter {
	pending := make(map[types.ParticipantId]struct{}, len(peerIDs))
	for _, id := range peerIDs {
		pending[id] = struct{}{}
	}
	w := &ackWaiter{pending: pending, done: make(chan struct{})}
	if len(pending) == 0 {
		close(w.done)
		w.closed = true
	}
	return w
}

func (w *ackWaiter) resolve(id types.ParticipantId) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	delete(w.pending, id)
	if len(w.pending) == 0 {
		close(w.done)
		w.closed = true
	}
}

func (w *ackWaiter) remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// GetOrCreateLink returns the VirtualLink[T] for (networkName,
// messageTypeName), creating it on first use. Creation broadcasts the
// subscription announcement to every already-connected peer and blocks
// until each one has acknowledged it (capped at 5s, matching the
// handshake budget), so that once it returns, every peer connected at
// registration time that has its own link for the same pair routes its
// sends on that link to this participant. Go methods cannot
// themselves be generic, so this is a package-level function taking the
// Connection as its first argument, the idiomatic substitute for a
// generic method.
func GetOrCreateLink[T any](c *Connection, networkName, messageTypeName string, encode func(T) ([]byte, error), decode func([]byte) (T, error)) *link.VirtualLink[T] {
	return getOrCreateLink[T](c, networkName, messageTypeName, encode, decode, true)
}

// GetOrCreateLinkAsync is GetOrCreateLink's fire-and-forget counterpart: it
// broadcasts the same subscription announcement but returns immediately
// instead of waiting for acknowledgements. Use this from a callback that
// already runs on the Connection's reactor goroutine (e.g. OnPeerLost) —
// the synchronous wait in GetOrCreateLink can only be satisfied by the
// reactor processing an incoming ack frame, so calling it from inside the
// reactor itself would deadlock.
func GetOrCreateLinkAsync[T any](c *Connection, networkName, messageTypeName string, encode func(T) ([]byte, error), decode func([]byte) (T, error)) *link.VirtualLink[T] {
	return getOrCreateLink[T](c, networkName, messageTypeName, encode, decode, false)
}

func getOrCreateLink[T any](c *Connection, networkName, messageTypeName string, encode func(T) ([]byte, error), decode func([]byte) (T, error), wait bool) *link.VirtualLink[T] {
	key := linkKey(networkName, messageTypeName)

	c.mu.Lock()
	if existing, ok := c.typedLinks[key]; ok {
		c.mu.Unlock()
		return existing.(*link.VirtualLink[T])
	}
	vl := link.NewVirtualLink[T](networkName, messageTypeName, encode, decode)
	c.typedLinks[key] = vl
	idx, isNew := c.subs.Allocate(networkName, messageTypeName, vl)
	peers := make([]*Peer, 0, len(c.peers))
	peerIDs := make([]types.ParticipantId, 0, len(c.peers))
	for id, p := range c.peers {
		peers = append(peers, p)
		peerIDs = append(peerIDs, id)
	}
	var waiter *ackWaiter
	if isNew {
		waiter = newAckWaiter(peerIDs)
		c.ackWaiters[key] = waiter
	}
	c.mu.Unlock()

	if !isNew {
		return vl
	}

	c.announceSubscription(peers, types.VAsioMsgSubscriber{
		ReceiverIdx: idx,
		NetworkName: networkName,
		MsgTypeName: messageTypeName,
	})

	if wait {
		select {
		case <-waiter.done:
		case <-time.After(5 * time.Second):
			c.log.Warnf("connection: registering %s/%s: %d peer(s) never acknowledged within 5s", networkName, messageTypeName, waiter.remaining())
		}
	}
	return vl
}

// resolveAck marks id as having acknowledged the link named by key,
// unblocking GetOrCreateLink's wait once every peer pending at
// registration time has answered.
func (c *Connection) resolveAck(key string, id types.ParticipantId) {
	c.mu.Lock()
	waiter := c.ackWaiters[key]
	c.mu.Unlock()
	if waiter != nil {
		waiter.resolve(id)
	}
}

func (c *Connection) announceSubscription(peers []*Peer, sub types.VAsioMsgSubscriber) {
	for _, p := range peers {
		msg := wire.NewSerializedMessage(types.MsgKindSubscriptionAnnouncement, types.RegistryMessageKindInvalid)
		wire.EncodeVAsioMsgSubscriber(msg.Buffer(), sub)
		frame, err := msg.ReleaseStorage()
		if err != nil {
			c.log.Errorf("connection: finalizing subscription announcement: %v", err)
			continue
		}
		if err := p.EnqueueRaw(frame); err != nil {
			c.log.Warnf("connection: announcing subscription to %s: %v", p.ParticipantName(), err)
		}
	}
}

// AddPeer registers a fully handshaken peer, replays every local
// subscription to it as a SubscriptionAnnouncement, starts its async
// read/write pumps, and wires its disconnect into onPeerLost. Must run on
// the reactor goroutine.
func (c *Connection) AddPeer(p *Peer) {
	info := p.GetInfo()

	c.mu.Lock()
	c.peers[info.ParticipantId] = p
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
	c.mu.Unlock()

	for _, sub := range subs {
		c.announceSubscription([]*Peer{p}, sub)
	}

	p.StartAsyncWrite()
	p.StartAsyncRead(
		func(frame []byte) { c.handleFrame(p, frame) },
		func(err error) { c.handlePeerLost(info.ParticipantId, info.ParticipantName, err) },
	)
}

func (c *Connection) handlePeerLost(id types.ParticipantId, name types.ParticipantName, err error) {
	c.ExecuteDeferred(func() {
		c.mu.Lock()
		peer := c.peers[id]
		delete(c.peers, id)
		links := make([]link.RawReceiver, 0, len(c.typedLinks))
		for _, v := range c.typedLinks {
			links = append(links, v.(link.RawReceiver))
		}
		c.mu.Unlock()

		if peer != nil {
			for _, rr := range links {
				rr.RemoveRemotesForPeer(peer)
			}
		}

		// Unblock any GetOrCreateLink call still waiting on this peer's
		// acknowledgement instead of making it sit out the full 5s budget
		// for a peer that is never coming back.
		c.mu.Lock()
		waiters := make([]*ackWaiter, 0, len(c.ackWaiters))
		for _, w := range c.ackWaiters {
			waiters = append(waiters, w)
		}
		c.mu.Unlock()
		for _, w := range waiters {
			w.resolve(id)
		}

		if c.onPeerLost != nil {
			c.onPeerLost(id, name, err)
		}
	})
}

// handleFrame is invoked on a Peer's read-pump goroutine; it immediately
// hops onto the reactor before touching any shared state.
func (c *Connection) handleFrame(p *Peer, frame []byte) {
	c.ExecuteDeferred(func() {
		msg, err := wire.ParseSerializedMessage(frame)
		if err != nil {
			c.log.Warnf("connection: dropping malformed frame from %s: %v", p.ParticipantName(), err)
			return
		}
		c.dispatch(p, msg)
	})
}

// Shutdown stops the reactor and closes every peer connection.
func (c *Connection) Shutdown() {
	c.mu.Lock()
	peers := make([]*Peer, 0, len(c.peers))
	for _, p := range c.peers {
		peers = append(peers, p)
	}
	c.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
	c.reactor.Stop()
}

// WaitHandshake blocks until fn reports completion (success or failure) or
// the 5s handshake budget from spec.md §5 elapses, propagating whatever
// error fn's channel delivers rather than treating any return as success.
func WaitHandshake(ctx context.Context, fn func() <-chan error) error {
	timeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	select {
	case err := <-fn():
		return err
	case <-timeout.Done():
		return fmt.Errorf("core: handshake did not complete within 5s: %w", types.ErrProtocolTimeout)
	}
}
