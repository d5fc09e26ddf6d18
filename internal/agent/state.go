package agent

import (
	"fmt"

	"kanbansync/internal/model"
	"kanbansync/internal/protocol"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateOffline:
		return "OFFLINE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is what a renderer needs to draw the connection indicator.
type Status struct {
	State State
	// Attempt is the reconnect attempt number while RECONNECTING.
	Attempt     int
	MaxAttempts int
	Syncing     bool
	ClientID    string
	ClientType  protocol.ClientType
}

// Label is a short human-readable indicator, e.g. "RECONNECTING(2/5)".
func (s Status) Label() string {
	if s.State == StateReconnecting {
		return fmt.Sprintf("%s(%d/%d)", s.State, s.Attempt, s.MaxAttempts)
	}
	return s.State.String()
}

// View is handed to the renderer after every change.
type View struct {
	Board  model.Board
	Status Status
}
