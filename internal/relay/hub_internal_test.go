package relay

import (
	"io"
	"testing"
	"time"

	"kanbansync/internal/protocol"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietHub() *Hub {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return NewHub(Config{Logger: logger, SendBuffer: 1})
}

func TestBroadcast_FullBufferDropsOnlyThatClient(t *testing.T) {
	// Arrange
	h := quietHub()
	slow := &Client{id: "slow", send: make(chan []byte, 1)}
	fast := &Client{id: "fast", send: make(chan []byte, 4)}
	sender := &Client{id: "sender", send: make(chan []byte, 1)}
	for _, c := range []*Client{slow, fast, sender} {
		h.clients[c] = true
		h.count.Add(1)
	}
	slow.send <- []byte("backlog")

	// Act
	sent := h.broadcast([]byte("frame"), sender)

	// Assert
	assert.Equal(t, 1, sent)
	assert.False(t, h.clients[slow])
	assert.True(t, h.clients[fast])
	assert.Equal(t, 2, h.ClientCount())
	assert.Equal(t, []byte("frame"), <-fast.send)
	assert.Empty(t, sender.send)

	<-slow.send
	_, open := <-slow.send
	assert.False(t, open)
}

func TestPendingRegistry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p := newPendingRegistry(time.Minute)
	p.add("a", pendingStatus{chatID: 1, kind: protocol.TypeRequestStatus, createdAt: now})
	p.add("b", pendingStatus{chatID: 1, kind: protocol.TypeRequestStatus, createdAt: now.Add(time.Second)})
	p.add("c", pendingStatus{chatID: 2, kind: protocol.TypeRequestColumnStatus, createdAt: now})

	got, ok := p.resolve("a", 0, protocol.TypeStatusResponse, now)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.chatID)

	_, ok = p.resolve("a", 0, protocol.TypeStatusResponse, now)
	assert.False(t, ok, "second answer to the same request")

	got, ok = p.resolve("", 1, protocol.TypeStatusResponse, now)
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Second), got.createdAt)

	_, ok = p.resolve("", 2, protocol.TypeStatusResponse, now)
	assert.False(t, ok, "kind must match")

	_, ok = p.resolve("", 2, protocol.TypeColumnStatusResponse, now.Add(2*time.Minute))
	assert.False(t, ok, "expired")
	assert.Zero(t, p.len())
}

func TestAnswerStatus_MalformedResponseKeepsRequestOpen(t *testing.T) {
	// Arrange
	h := quietHub()
	board := &Client{id: "board", send: make(chan []byte, 4)}
	h.clients[board] = true
	req, err := protocol.New(protocol.TypeRequestStatus, nil, time.Now())
	require.NoError(t, err)
	h.requestFromChat(req.WithChat(42).WithCorrelation("c-1"))

	// Act
	h.dispatch(board, []byte(`{"type":"STATUS_RESPONSE","correlationId":"c-1","payload":{"columns":"broken"},"timestamp":"2026-03-10T12:00:00Z"}`))
	h.dispatch(board, []byte(`{"type":"STATUS_RESPONSE","correlationId":"c-1","payload":{"columns":[{"id":"todo","title":"To Do","status":"todo","taskCount":2}]},"timestamp":"2026-03-10T12:00:00Z"}`))

	// Assert
	require.Len(t, h.notices, 1)
	msg := <-h.notices
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, 0, h.pending.len())
}

func TestDispatch_StatusRequestWithoutChatIsNotTracked(t *testing.T) {
	h := quietHub()
	asker := &Client{id: "asker", send: make(chan []byte, 4)}
	board := &Client{id: "board", send: make(chan []byte, 4)}
	h.clients[asker] = true
	h.clients[board] = true

	h.dispatch(asker, []byte(`{"type":"REQUEST_STATUS","timestamp":"2026-03-10T12:00:00Z"}`))

	assert.Equal(t, 0, h.pending.len())
	require.Len(t, board.send, 1)
	assert.Empty(t, asker.send)
}
