// Package notify turns relay events into chat messages and delivers them
// to the single configured notification target.
package notify

import (
	"context"
	"errors"
)

var ErrNoTarget = errors.New("notification target is not set")

// Button is one inline keyboard button; Data comes back in the callback query.
type Button struct {
	Text string
	Data string
}

type Message struct {
	ChatID   int64
	Text     string
	Markdown bool
	// Buttons are rendered one per row.
	Buttons []Button
}

// Sink is the outbound notification channel.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}
