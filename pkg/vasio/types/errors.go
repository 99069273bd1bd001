package types

import "errors"

// Sentinel errors forming the error taxonomy of spec.md §7. Call sites wrap
// these with fmt.Errorf("...: %w", ErrX) so errors.Is keeps working across
// package boundaries.
var (
	// ErrConfiguration covers invalid URIs, invalid cluster/node parameters
	// and unknown schema elements, surfaced at construction time.
	ErrConfiguration = errors.New("vasio: configuration error")

	// ErrProtocol covers unsupported protocol versions, malformed
	// handshakes, magic-byte mismatches and join timeouts.
	ErrProtocol = errors.New("vasio: protocol error")

	// ErrEndOfBuffer is returned when a decoder tries to read past the
	// available bytes in a MessageBuffer.
	ErrEndOfBuffer = errors.New("vasio: end of buffer")

	// ErrInvalidOperation is returned on API misuse, e.g. reading the
	// sender endpoint of a frame whose kind does not carry one.
	ErrInvalidOperation = errors.New("vasio: invalid operation")

	// ErrConnectionRefused is returned when a Peer fails to establish a
	// socket to any of a PeerInfo's acceptor URIs.
	ErrConnectionRefused = errors.New("vasio: connection refused")

	// ErrConnectionLost wraps socket read/write failures on a Peer; it is
	// carried by the error a Connection passes to its OnPeerLost callback.
	ErrConnectionLost = errors.New("vasio: connection lost")

	// ErrUnknownTarget is returned by a targeted send to a participant name
	// that has no matching remote receiver on the link.
	ErrUnknownTarget = errors.New("vasio: unknown target participant")

	// ErrBackpressure names the write-queue-overflow case of the error
	// taxonomy. No code path returns it: a Peer's write queue has no soft
	// cap, and a full queue blocks the sender instead.
	ErrBackpressure = errors.New("vasio: backpressure")

	// ErrInvalidUri is returned by uri.Parse for a malformed acceptor URI.
	ErrInvalidUri = errors.New("vasio: invalid uri")

	// ErrProtocolTimeout is returned when JoinDomain's handshake budget
	// elapses before all replies arrive.
	ErrProtocolTimeout = errors.New("vasio: protocol timeout")
)
