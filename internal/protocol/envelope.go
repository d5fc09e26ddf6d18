// Package protocol defines the message envelope shared by the relay, the
// sync agents and the notification sink, and its JSON wire codec.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"
	"github.com/google/uuid"
)

var ErrMalformed = errors.New("malformed envelope")

// MessageType is the closed set of envelope types. Values outside the set
// decode fine; dispatchers must route them to an explicit ignore arm.
type MessageType string

const (
	TypePing                  MessageType = "PING"
	TypeConnectionEstablished MessageType = "CONNECTION_ESTABLISHED"
	TypeRequestSync           MessageType = "REQUEST_SYNC"
	TypeSyncData              MessageType = "SYNC_DATA"
	TypeSyncRequested         MessageType = "SYNC_REQUESTED"
	TypeSyncConfirmed         MessageType = "SYNC_CONFIRMED"
	TypeTaskCreated           MessageType = "TASK_CREATED"
	TypeTaskUpdated           MessageType = "TASK_UPDATED"
	TypeTaskDeleted           MessageType = "TASK_DELETED"
	TypeTaskMoved             MessageType = "TASK_MOVED"
	TypeRequestStatus         MessageType = "REQUEST_STATUS"
	TypeStatusResponse        MessageType = "STATUS_RESPONSE"
	TypeRequestColumnStatus   MessageType = "REQUEST_COLUMN_STATUS"
	TypeColumnStatusResponse  MessageType = "COLUMN_STATUS_RESPONSE"
)

var knownTypes = map[MessageType]bool{
	TypePing:                  true,
	TypeConnectionEstablished: true,
	TypeRequestSync:           true,
	TypeSyncData:              true,
	TypeSyncRequested:         true,
	TypeSyncConfirmed:         true,
	TypeTaskCreated:           true,
	TypeTaskUpdated:           true,
	TypeTaskDeleted:           true,
	TypeTaskMoved:             true,
	TypeRequestStatus:         true,
	TypeStatusResponse:        true,
	TypeRequestColumnStatus:   true,
	TypeColumnStatusResponse:  true,
}

// Known reports whether t belongs to the protocol.
func (t MessageType) Known() bool { return knownTypes[t] }

// IsTaskChange reports whether t is one of the per-entity task events.
func (t MessageType) IsTaskChange() bool {
	switch t {
	case TypeTaskCreated, TypeTaskUpdated, TypeTaskDeleted, TypeTaskMoved:
		return true
	}
	return false
}

// Envelope is the uniform wrapper for every message on the wire.
//
// CorrelationID pairs a request with its answer; an empty value marks a
// fire-and-forget message. ChatID is routing metadata for status requests
// originating from a Telegram chat.
type Envelope struct {
	Type          MessageType     `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	ChatID        int64           `json:"chatId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// IsRequest reports whether the message expects a paired confirmation.
func (e Envelope) IsRequest() bool { return e.CorrelationID != "" }

// NewCorrelationID returns a fresh opaque correlation id.
func NewCorrelationID() string { return uuid.NewString() }

// New builds an envelope with payload encoded and the timestamp set to now.
func New(t MessageType, payload any, now time.Time) (Envelope, error) {
	env := Envelope{Type: t, Timestamp: now}
	if payload != nil {
		raw, err := sonic.ConfigStd.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// WithCorrelation returns a copy of e tagged with id.
func (e Envelope) WithCorrelation(id string) Envelope {
	e.CorrelationID = id
	return e
}

// WithChat returns a copy of e addressed to chatID.
func (e Envelope) WithChat(chatID int64) Envelope {
	e.ChatID = chatID
	return e
}

// Encode serializes the envelope, stamping the timestamp when it is zero.
func Encode(e Envelope) ([]byte, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := sonic.ConfigStd.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Type, err)
	}
	return data, nil
}

// Decode parses a frame. Unknown types decode without error; frames that
// are not JSON objects, have no type, or carry fields of the wrong shape
// return ErrMalformed.
func Decode(raw []byte) (Envelope, error) {
	var e Envelope
	if err := sonic.ConfigStd.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return e, nil
}

// DecodePayload unmarshals the envelope payload into dst.
func (e Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return fmt.Errorf("%w: %s has no payload", ErrMalformed, e.Type)
	}
	if err := sonic.ConfigStd.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, e.Type, err)
	}
	return nil
}

// LegacyMessage is the flat shape older board clients and bot builds send:
// routing fields at the top level instead of inside an envelope payload.
type LegacyMessage struct {
	Type         MessageType
	ChatID       int64
	ColumnStatus string
}

// PeekLegacy pulls the routing fields out of a frame that Decode rejected.
// It only fails when the frame has no readable string type.
func PeekLegacy(raw []byte) (LegacyMessage, error) {
	root, err := sonic.Get(raw)
	if err != nil {
		return LegacyMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	typ, err := root.Get("type").String()
	if err != nil || typ == "" {
		return LegacyMessage{}, fmt.Errorf("%w: no type", ErrMalformed)
	}
	msg := LegacyMessage{Type: MessageType(typ)}
	msg.ChatID = peekInt(root.Get("chatId"))
	if s, err := root.Get("columnStatus").String(); err == nil {
		msg.ColumnStatus = s
	}
	return msg, nil
}

func peekInt(n *ast.Node) int64 {
	if n == nil || !n.Exists() {
		return 0
	}
	if v, err := n.Int64(); err == nil {
		return v
	}
	return 0
}
