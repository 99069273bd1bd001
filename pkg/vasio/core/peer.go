package core

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/silkit-go/vasio/pkg/vasio/types"
	"github.com/silkit-go/vasio/pkg/vasio/uri"
	"github.com/silkit-go/vasio/pkg/vasio/wire"
)

const writeQueueDepth = 256

// maxFrameSize bounds how large a single frame's declared size may be
// before readPump refuses it and closes the peer. Without this ceiling a
// corrupt or hostile 4-byte size prefix drives an allocation of up to
// 4GiB per frame.
const maxFrameSize = 256 * 1024

// Peer is a single duplex connection to another participant: a write
// queue pump and a read reassembly pump, modeled on the teacher's
// single-goroutine poll loop but split into one goroutine per direction
// since a socket's read and write sides are independent here.
type Peer struct {
	log  types.Logger
	conn net.Conn

	mu      sync.Mutex
	info    types.PeerInfo
	version types.ProtocolVersion

	writeQueue chan []byte
	closeOnce  sync.Once
	closed     chan struct{}
	closeErr   error

	readOnce  sync.Once
	writeOnce sync.Once

	ioMu     sync.RWMutex
	onFrame  func(frame []byte)
	onClosed func(err error)
}

// NewPeer wraps an already-established net.Conn. Callers must call
// StartAsyncRead before the peer will deliver any inbound frames, and
// StartAsyncWrite before EnqueueRaw/EnqueueSimMessage will flush.
func NewPeer(conn net.Conn, log types.Logger) *Peer {
	return &Peer{
		log:        log,
		conn:       conn,
		writeQueue: make(chan []byte, writeQueueDepth),
		closed:     make(chan struct{}),
	}
}

func (p *Peer) SetInfo(info types.PeerInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info = info
}

func (p *Peer) GetInfo() types.PeerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

func (p *Peer) ParticipantName() types.ParticipantName {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info.ParticipantName
}

func (p *Peer) SetProtocolVersion(v types.ProtocolVersion) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.version = v
}

func (p *Peer) GetProtocolVersion() types.ProtocolVersion {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

func (p *Peer) LocalAddr() net.Addr  { return p.conn.LocalAddr() }
func (p *Peer) RemoteAddr() net.Addr { return p.conn.RemoteAddr() }

// StartAsyncWrite spawns the write pump on its first call; every EnqueueRaw
// call after this flushes to the socket in FIFO order. Later calls are a
// no-op: a Peer has exactly one write pump for its whole lifetime, since a
// second goroutine draining the same writeQueue would race the first for
// frames and reorder them on the wire.
func (p *Peer) StartAsyncWrite() {
	p.writeOnce.Do(func() { go p.writePump() })
}

// StartAsyncRead rebinds the frame/close callbacks and, on its first call,
// spawns the read-reassembly pump. onFrame is invoked once per complete
// frame (including its 4-byte size prefix, ready for
// wire.ParseSerializedMessage); onClosed fires exactly once when the
// socket errors or EOFs.
//
// A Peer is handed through a handshake phase (AcceptPeer/announceToPeer,
// which read the first frame or two themselves) before Connection.AddPeer
// takes over steady-state dispatch. Both call StartAsyncRead: the first
// call starts the one-and-only reassembly goroutine for this socket, and
// AddPeer's later call only swaps in the steady-state callbacks — it must
// never start a second goroutine, since two readers racing io.ReadFull on
// the same net.Conn would corrupt frame reassembly.
func (p *Peer) StartAsyncRead(onFrame func(frame []byte), onClosed func(err error)) {
	p.setCallbacks(onFrame, onClosed)
	p.readOnce.Do(func() { go p.readPump() })
}

func (p *Peer) setCallbacks(onFrame func(frame []byte), onClosed func(err error)) {
	p.ioMu.Lock()
	defer p.ioMu.Unlock()
	p.onFrame = onFrame
	p.onClosed = onClosed
}

func (p *Peer) callbacks() (func(frame []byte), func(err error)) {
	p.ioMu.RLock()
	defer p.ioMu.RUnlock()
	return p.onFrame, p.onClosed
}

func (p *Peer) writePump() {
	for {
		select {
		case <-p.closed:
			return
		case frame, ok := <-p.writeQueue:
			if !ok {
				return
			}
			if _, err := p.conn.Write(frame); err != nil {
				p.shutdown(fmt.Errorf("core: writing to peer %s: %v: %w", p.RemoteAddr(), err, types.ErrConnectionLost))
				return
			}
		}
	}
}

func (p *Peer) readPump() {
	sizeBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(p.conn, sizeBuf); err != nil {
			p.shutdown(fmt.Errorf("core: reading from peer %s: %v: %w", p.RemoteAddr(), err, types.ErrConnectionLost))
			return
		}
		size := binary.LittleEndian.Uint32(sizeBuf)
		if size < 4 || size > maxFrameSize {
			p.shutdown(fmt.Errorf("core: peer %s sent impossible frame size %d: %w", p.RemoteAddr(), size, types.ErrProtocol))
			return
		}
		frame := make([]byte, size)
		copy(frame, sizeBuf)
		if _, err := io.ReadFull(p.conn, frame[4:]); err != nil {
			p.shutdown(fmt.Errorf("core: reading from peer %s: %v: %w", p.RemoteAddr(), err, types.ErrConnectionLost))
			return
		}
		onFrame, _ := p.callbacks()
		onFrame(frame)
	}
}

// EnqueueRaw queues an already-finalized frame for the write pump.
// There is no backpressure error (spec.md's Open Question (a)): a full
// queue of writeQueueDepth frames blocks the caller rather than dropping or
// erroring.
func (p *Peer) EnqueueRaw(frame []byte) error {
	select {
	case p.writeQueue <- frame:
		return nil
	case <-p.closed:
		return fmt.Errorf("core: peer %s is closed: %w", p.RemoteAddr(), types.ErrConnectionLost)
	}
}

// EnqueueSimMessage implements link.RemoteSink: it wraps payload (already
// Codec-encoded bytes for one message type) in a sim SerializedMessage
// tagged with remoteIndex and the sender's endpoint, then enqueues it.
func (p *Peer) EnqueueSimMessage(remoteIndex types.EndpointId, from types.EndpointAddress, payload []byte) error {
	msg := wire.NewSimSerializedMessage(remoteIndex, from)
	msg.Buffer().PutFixed(payload)
	frame, err := msg.ReleaseStorage()
	if err != nil {
		return fmt.Errorf("core: finalizing sim message to %s: %v", p.RemoteAddr(), err)
	}
	return p.EnqueueRaw(frame)
}

func (p *Peer) shutdown(err error) {
	p.closeOnce.Do(func() {
		p.closeErr = err
		close(p.closed)
		_ = p.conn.Close()
		_, onClosed := p.callbacks()
		if onClosed != nil {
			onClosed(err)
		}
	})
}

// Close shuts the peer down without attributing a connection-lost error,
// used for graceful disconnects (e.g. losing a JoinDomain race).
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		_ = p.conn.Close()
	})
}

func (p *Peer) Done() <-chan struct{} { return p.closed }
func (p *Peer) Err() error            { return p.closeErr }

// DialPeer establishes a new outbound connection to one of info's
// acceptor URIs, trying each in order until one succeeds.
func DialPeer(ctx context.Context, t *Transport, info types.PeerInfo, log types.Logger) (*Peer, error) {
	var lastErr error
	for _, raw := range info.AcceptorUris {
		u, err := uri.Parse(raw)
		if err != nil {
			lastErr = err
			continue
		}
		conn, err := t.Dial(ctx, u)
		if err != nil {
			lastErr = err
			continue
		}
		peer := NewPeer(conn, log)
		peer.SetInfo(info)
		return peer, nil
	}
	if lastErr == nil {
		lastErr = types.ErrConnectionRefused
	}
	return nil, fmt.Errorf("core: no reachable acceptor uri for %s: %w", info.ParticipantName, lastErr)
}
