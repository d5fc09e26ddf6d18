package relay

import (
	"time"

	"kanbansync/internal/protocol"
)

// pendingStatus is a status request waiting for its first answer.
type pendingStatus struct {
	chatID    int64
	kind      protocol.MessageType
	createdAt time.Time
}

// pendingRegistry pairs status responses with the chat that asked.
// It is owned by the hub goroutine and is not safe for concurrent use.
type pendingRegistry struct {
	ttl     time.Duration
	entries map[string]pendingStatus
}

func newPendingRegistry(ttl time.Duration) *pendingRegistry {
	return &pendingRegistry{ttl: ttl, entries: map[string]pendingStatus{}}
}

func (p *pendingRegistry) add(correlationID string, entry pendingStatus) {
	p.prune(entry.createdAt)
	p.entries[correlationID] = entry
}

// resolve returns the waiting request for a response and forgets it, so
// later answers to the same request find nothing. Responses without a
// known correlationId fall back to the newest request from the same chat.
func (p *pendingRegistry) resolve(correlationID string, chatID int64, response protocol.MessageType, now time.Time) (pendingStatus, bool) {
	p.prune(now)
	kind := requestFor(response)

	if entry, ok := p.entries[correlationID]; ok && correlationID != "" {
		delete(p.entries, correlationID)
		return entry, true
	}
	if chatID == 0 {
		return pendingStatus{}, false
	}

	var (
		bestID string
		best   pendingStatus
		found  bool
	)
	for id, e := range p.entries {
		if e.chatID != chatID || e.kind != kind {
			continue
		}
		if !found || e.createdAt.After(best.createdAt) {
			bestID, best, found = id, e, true
		}
	}
	if found {
		delete(p.entries, bestID)
	}
	return best, found
}

func (p *pendingRegistry) prune(now time.Time) {
	for id, e := range p.entries {
		if now.Sub(e.createdAt) > p.ttl {
			delete(p.entries, id)
		}
	}
}

func (p *pendingRegistry) len() int { return len(p.entries) }

func requestFor(response protocol.MessageType) protocol.MessageType {
	if response == protocol.TypeColumnStatusResponse {
		return protocol.TypeRequestColumnStatus
	}
	return protocol.TypeRequestStatus
}
