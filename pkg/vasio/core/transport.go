//go:build !windows

package core

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/silkit-go/vasio/pkg/vasio/types"
	"github.com/silkit-go/vasio/pkg/vasio/uri"
)

// Transport dials or accepts connections for the tcp:// and local://
// acceptor address families. It is the collaborator Peer asks to
// establish the underlying net.Conn.
type Transport struct {
	NoDelay  bool
	QuickAck bool
}

func NewTransport(noDelay, quickAck bool) *Transport {
	return &Transport{NoDelay: noDelay, QuickAck: quickAck}
}

// control applies the socket tuning spec.md's middleware config exposes,
// the same SO_REUSEADDR / TCP_NODELAY-adjacent knob pattern used for
// platform socket tuning elsewhere in the pack.
func (t *Transport) control(network, address string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if opErr != nil {
			return
		}
		if network == "tcp" || network == "tcp4" || network == "tcp6" {
			if t.NoDelay {
				opErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			}
			if opErr == nil && t.QuickAck {
				// TCP_QUICKACK is Linux-only; ignore ENOPROTOOPT on other
				// unix kernels instead of failing the dial/listen.
				_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
			}
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// Dial connects to a single acceptor URI, returning a net.Conn ready for a
// Peer to wrap.
func (t *Transport) Dial(ctx context.Context, u uri.URI) (net.Conn, error) {
	dialer := net.Dialer{Control: t.control}
	switch u.Type() {
	case uri.TypeTcp:
		host, err := u.Host()
		if err != nil {
			return nil, fmt.Errorf("core: dialing %s: %w", u, err)
		}
		conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, u.Port()))
		if err != nil {
			return nil, fmt.Errorf("core: dialing %s: %v: %w", u, err, types.ErrConnectionRefused)
		}
		return conn, nil
	case uri.TypeLocal:
		conn, err := dialer.DialContext(ctx, "unix", u.Path())
		if err != nil {
			return nil, fmt.Errorf("core: dialing %s: %v: %w", u, err, types.ErrConnectionRefused)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("core: dialing %s: %w", u, types.ErrConfiguration)
	}
}

// Listen opens an acceptor socket for the given URI.
func (t *Transport) Listen(u uri.URI) (net.Listener, error) {
	lc := net.ListenConfig{Control: t.control}
	switch u.Type() {
	case uri.TypeTcp:
		host, err := u.Host()
		if err != nil {
			return nil, fmt.Errorf("core: listening on %s: %w", u, err)
		}
		return lc.Listen(context.Background(), "tcp", fmt.Sprintf("%s:%d", host, u.Port()))
	case uri.TypeLocal:
		return lc.Listen(context.Background(), "unix", u.Path())
	default:
		return nil, fmt.Errorf("core: listening on %s: %w", u, types.ErrConfiguration)
	}
}
