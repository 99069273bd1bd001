// Package uri implements the minimal tcp:// / local:// acceptor-address
// grammar used in peer info and CLI configuration. It is deliberately not
// RFC 3986 general purpose: only the two schemes spec.md's transports
// understand are accepted.
package uri

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/silkit-go/vasio/pkg/vasio/types"
)

const (
	tcpPrefix   = "tcp://"
	localPrefix = "local://"
)

type Type uint8

const (
	TypeUndefined Type = iota
	TypeTcp
	TypeLocal
)

// URI is an immutable parsed acceptor address.
type URI struct {
	raw  string
	typ  Type
	host string
	port uint16
	path string
}

func (u URI) String() string { return u.raw }
func (u URI) Type() Type     { return u.typ }

// Host returns the tcp:// host. Callers must check Type() == TypeTcp first;
// matches the original's hard failure on an empty host.
func (u URI) Host() (string, error) {
	if u.host == "" {
		return "", fmt.Errorf("uri: host must not be empty: %s: %w", u.raw, types.ErrInvalidUri)
	}
	return u.host, nil
}

func (u URI) Port() uint16 { return u.port }
func (u URI) Path() string { return u.path }

// Parse accepts "tcp://host:port" or "local:///path" and rejects anything
// else with ErrInvalidUri.
func Parse(raw string) (URI, error) {
	u := URI{raw: raw}

	switch {
	case strings.HasPrefix(raw, tcpPrefix):
		hostAndPort := raw[len(tcpPrefix):]
		sep := strings.LastIndex(hostAndPort, ":")
		if sep < 0 {
			return URI{}, fmt.Errorf("uri: invalid tcp:// uri, missing colon: %s: %w", raw, types.ErrInvalidUri)
		}
		host := hostAndPort[:sep]
		portStr := hostAndPort[sep+1:]
		if host == "" || portStr == "" {
			return URI{}, fmt.Errorf("uri: invalid host or port for tcp://: %s: %w", raw, types.ErrInvalidUri)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return URI{}, fmt.Errorf("uri: invalid port %q: %w", portStr, types.ErrInvalidUri)
		}
		u.typ = TypeTcp
		u.host = host
		u.port = uint16(port)
		return u, nil

	case strings.HasPrefix(raw, localPrefix):
		path := raw[len(localPrefix):]
		if path == "" {
			return URI{}, fmt.Errorf("uri: invalid path for local://: %s: %w", raw, types.ErrInvalidUri)
		}
		u.typ = TypeLocal
		u.path = path
		return u, nil

	default:
		return URI{}, fmt.Errorf("uri: unknown uri protocol: %s: %w", raw, types.ErrInvalidUri)
	}
}

// FromHostPort builds a tcp:// URI the way the original's
// Uri(host, port) constructor does.
func FromHostPort(host string, port uint16) URI {
	u, err := Parse(fmt.Sprintf("%s%s:%d", tcpPrefix, host, port))
	if err != nil {
		// port is always a valid uint16 and Parse splits on the last colon,
		// so this can only fail for an empty host; the URI is then built
		// without validation.
		return URI{raw: fmt.Sprintf("%s%s:%d", tcpPrefix, host, port), typ: TypeTcp, host: host, port: port}
	}
	return u
}
