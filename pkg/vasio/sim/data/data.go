// Package data carries the generic publish/subscribe payload exercised by
// spec.md's S3 scenario (subscription ack fan-out).
package data

import (
	"github.com/silkit-go/vasio/pkg/vasio/core"
	"github.com/silkit-go/vasio/pkg/vasio/link"
	"github.com/silkit-go/vasio/pkg/vasio/wire"
)

const MessageTypeName = "data.MessageEvent"

// MessageEvent is an opaque byte payload published on a data network; its
// structure is defined by the topic, not this layer.
type MessageEvent struct {
	Data []byte
}

func Encode(m MessageEvent) ([]byte, error) {
	b := wire.NewMessageBuffer()
	b.PutBytes(m.Data)
	return b.ReleaseStorage(), nil
}

func Decode(raw []byte) (MessageEvent, error) {
	b := wire.NewMessageBufferFromBytes(raw)
	var m MessageEvent
	data, err := b.GetBytes()
	if err != nil {
		return m, err
	}
	m.Data = data
	return m, nil
}

func Link(conn *core.Connection, networkName string) *link.VirtualLink[MessageEvent] {
	return core.GetOrCreateLink[MessageEvent](conn, networkName, MessageTypeName, Encode, Decode)
}
