// Package rpc carries the request/response payloads for SilKit-style RPC
// calls: a client's FunctionCall is routed to a server's VirtualLink and
// its FunctionCallResponse is routed back.
package rpc

import (
	"github.com/silkit-go/vasio/pkg/vasio/core"
	"github.com/silkit-go/vasio/pkg/vasio/link"
	"github.com/silkit-go/vasio/pkg/vasio/wire"
)

const (
	CallMessageTypeName     = "rpc.FunctionCall"
	ResponseMessageTypeName = "rpc.FunctionCallResponse"
)

// FunctionCall is issued by an RPC client against a named function.
type FunctionCall struct {
	FunctionName string
	Parameter    []byte
}

// FunctionCallResponse answers a FunctionCall with the server's result.
type FunctionCallResponse struct {
	Data []byte
}

func EncodeCall(c FunctionCall) ([]byte, error) {
	b := wire.NewMessageBuffer()
	b.PutString(c.FunctionName)
	b.PutBytes(c.Parameter)
	return b.ReleaseStorage(), nil
}

func DecodeCall(raw []byte) (FunctionCall, error) {
	b := wire.NewMessageBufferFromBytes(raw)
	var c FunctionCall
	name, err := b.GetString()
	if err != nil {
		return c, err
	}
	param, err := b.GetBytes()
	if err != nil {
		return c, err
	}
	c.FunctionName = name
	c.Parameter = param
	return c, nil
}

func EncodeResponse(r FunctionCallResponse) ([]byte, error) {
	b := wire.NewMessageBuffer()
	b.PutBytes(r.Data)
	return b.ReleaseStorage(), nil
}

func DecodeResponse(raw []byte) (FunctionCallResponse, error) {
	b := wire.NewMessageBufferFromBytes(raw)
	var r FunctionCallResponse
	data, err := b.GetBytes()
	if err != nil {
		return r, err
	}
	r.Data = data
	return r, nil
}

// CallLink returns the VirtualLink carrying calls for one RPC function's
// network, creating it on first use.
func CallLink(conn *core.Connection, networkName string) *link.VirtualLink[FunctionCall] {
	return core.GetOrCreateLink[FunctionCall](conn, networkName, CallMessageTypeName, EncodeCall, DecodeCall)
}

// ResponseLink returns the VirtualLink carrying the matching responses.
func ResponseLink(conn *core.Connection, networkName string) *link.VirtualLink[FunctionCallResponse] {
	return core.GetOrCreateLink[FunctionCallResponse](conn, networkName, ResponseMessageTypeName, EncodeResponse, DecodeResponse)
}
