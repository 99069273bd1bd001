// Package can carries the CAN frame payload spec.md's S1 scenario
// exercises: a participant on one protocol version sends a frame, a peer
// on another version observes identical fields.
package can

import (
	"github.com/silkit-go/vasio/pkg/vasio/core"
	"github.com/silkit-go/vasio/pkg/vasio/link"
	"github.com/silkit-go/vasio/pkg/vasio/wire"
)

const (
	NetworkKind     = "CAN"
	MessageTypeName = "can.FrameEvent"
)

// FrameEvent is one CAN frame transmitted or received on a CAN network.
type FrameEvent struct {
	CanID uint32
	Data  []byte
}

func Encode(f FrameEvent) ([]byte, error) {
	b := wire.NewMessageBuffer()
	b.PutUint32(f.CanID)
	b.PutBytes(f.Data)
	return b.ReleaseStorage(), nil
}

func Decode(raw []byte) (FrameEvent, error) {
	b := wire.NewMessageBufferFromBytes(raw)
	var f FrameEvent
	canID, err := b.GetUint32()
	if err != nil {
		return f, err
	}
	data, err := b.GetBytes()
	if err != nil {
		return f, err
	}
	f.CanID = canID
	f.Data = data
	return f, nil
}

// Link returns the VirtualLink for one CAN network's frame traffic,
// creating it on first use.
func Link(conn *core.Connection, networkName string) *link.VirtualLink[FrameEvent] {
	return core.GetOrCreateLink[FrameEvent](conn, networkName, MessageTypeName, Encode, Decode)
}
