// Package sync carries the participant lifecycle payloads: status
// broadcasts every participant publishes as it moves through its
// lifecycle, and the commands a controller can target at one participant.
package sync

import (
	"time"

	"github.com/silkit-go/vasio/pkg/vasio/core"
	"github.com/silkit-go/vasio/pkg/vasio/link"
	"github.com/silkit-go/vasio/pkg/vasio/wire"
)

const (
	StatusNetworkName  = "VAsioSyncStatus"
	CommandNetworkName = "VAsioSyncCommand"

	StatusMessageTypeName  = "sync.ParticipantStatus"
	CommandMessageTypeName = "sync.ParticipantCommand"
)

// ParticipantState is the lifecycle state a ParticipantStatus reports.
type ParticipantState uint8

const (
	ParticipantStateInvalid ParticipantState = iota
	ParticipantStateServicesCreated
	ParticipantStateReadyToRun
	ParticipantStateRunning
	ParticipantStatePaused
	ParticipantStateStopping
	ParticipantStateStopped
	ParticipantStateError
	ParticipantStateShuttingDown
	ParticipantStateShutdown
)

// CommandKind selects the action a ParticipantCommand requests.
type CommandKind uint8

const (
	CommandInvalid CommandKind = iota
	CommandRun
	CommandStop
	CommandShutdown
)

// ParticipantStatus announces a lifecycle transition. Late joiners receive
// the most recent status of every already-running participant via the
// VirtualLink's one-deep history, per spec.md's replay requirement for
// this network.
type ParticipantStatus struct {
	ParticipantName string
	State           ParticipantState
	Reason          string
	EnterTime       time.Time
	RefreshTime     time.Time
}

// ParticipantCommand targets a lifecycle action at one named participant.
type ParticipantCommand struct {
	ParticipantName string
	Kind            CommandKind
}

func EncodeStatus(s ParticipantStatus) ([]byte, error) {
	b := wire.NewMessageBuffer()
	b.PutString(s.ParticipantName)
	b.PutEnum(uint8(s.State))
	b.PutString(s.Reason)
	b.PutTime(s.EnterTime)
	b.PutTime(s.RefreshTime)
	return b.ReleaseStorage(), nil
}

func DecodeStatus(raw []byte) (ParticipantStatus, error) {
	b := wire.NewMessageBufferFromBytes(raw)
	var s ParticipantStatus
	name, err := b.GetString()
	if err != nil {
		return s, err
	}
	state, err := b.GetEnum()
	if err != nil {
		return s, err
	}
	reason, err := b.GetString()
	if err != nil {
		return s, err
	}
	enter, err := b.GetTime()
	if err != nil {
		return s, err
	}
	refresh, err := b.GetTime()
	if err != nil {
		return s, err
	}
	s.ParticipantName = name
	s.State = ParticipantState(state)
	s.Reason = reason
	s.EnterTime = enter
	s.RefreshTime = refresh
	return s, nil
}

func EncodeCommand(c ParticipantCommand) ([]byte, error) {
	b := wire.NewMessageBuffer()
	b.PutString(c.ParticipantName)
	b.PutEnum(uint8(c.Kind))
	return b.ReleaseStorage(), nil
}

func DecodeCommand(raw []byte) (ParticipantCommand, error) {
	b := wire.NewMessageBufferFromBytes(raw)
	var c ParticipantCommand
	name, err := b.GetString()
	if err != nil {
		return c, err
	}
	kind, err := b.GetEnum()
	if err != nil {
		return c, err
	}
	c.ParticipantName = name
	c.Kind = CommandKind(kind)
	return c, nil
}

// StatusLink returns the VirtualLink carrying lifecycle status broadcasts,
// configuring its one-deep history on first creation so a participant that
// joins after others have already announced their state still learns it.
func StatusLink(conn *core.Connection) *link.VirtualLink[ParticipantStatus] {
	l := core.GetOrCreateLink[ParticipantStatus](conn, StatusNetworkName, StatusMessageTypeName, EncodeStatus, DecodeStatus)
	l.SetHistoryLength(1)
	return l
}

// StatusLinkAsync is StatusLink's non-blocking counterpart: safe to call
// from inside a Connection callback that already runs on the reactor
// goroutine (core.Connection.OnPeerLost, in particular), where
// StatusLink's synchronous ack-wait would deadlock waiting for an
// acknowledgement that only the reactor itself can deliver.
func StatusLinkAsync(conn *core.Connection) *link.VirtualLink[ParticipantStatus] {
	l := core.GetOrCreateLinkAsync[ParticipantStatus](conn, StatusNetworkName, StatusMessageTypeName, EncodeStatus, DecodeStatus)
	l.SetHistoryLength(1)
	return l
}

// CommandLink returns the VirtualLink carrying targeted lifecycle commands.
func CommandLink(conn *core.Connection) *link.VirtualLink[ParticipantCommand] {
	return core.GetOrCreateLink[ParticipantCommand](conn, CommandNetworkName, CommandMessageTypeName, EncodeCommand, DecodeCommand)
}
