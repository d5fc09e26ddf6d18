// Package relay fans envelopes out between connected board clients and
// forwards notification-worthy events to the chat sink.
package relay

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"kanbansync/internal/notify"
	"kanbansync/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var ErrHubStopped = errors.New("relay hub is not running")

const (
	defaultSendBuffer = 256
	noticeQueueSize   = 64
	pendingStatusTTL  = time.Minute
	connectedGreeting = "Connected to Kanban relay"
)

type Config struct {
	Sink      notify.Sink
	Formatter *notify.Formatter
	// Target is the chat notifications go to; 0 means unset.
	Target     int64
	SendBuffer int
	Logger     log.FieldLogger
	// OnTargetChange is called after SetNotificationTarget.
	OnTargetChange func(chatID int64)
}

// ConnectionInfo describes one live client.
type ConnectionInfo struct {
	ClientID    string              `json:"clientId"`
	ClientType  protocol.ClientType `json:"clientType"`
	ConnectedAt time.Time           `json:"connectedAt"`
}

type inboundFrame struct {
	client *Client
	raw    []byte
}

// Hub owns the connection set. Everything that touches it runs on the
// goroutine started by Run.
type Hub struct {
	logger     log.FieldLogger
	sink       notify.Sink
	formatter  *notify.Formatter
	sendBuffer int
	onTarget   func(int64)
	now        func() time.Time

	clients map[*Client]bool
	pending *pendingRegistry

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame
	outbound   chan protocol.Envelope
	snapshots  chan chan []ConnectionInfo
	notices    chan notify.Message

	target atomic.Int64
	count  atomic.Int64
	done   chan struct{}
}

func NewHub(cfg Config) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	formatter := cfg.Formatter
	if formatter == nil {
		formatter = notify.NewFormatter(nil)
	}
	sink := cfg.Sink
	if sink == nil {
		sink = notify.NewLogSink(logger)
	}
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}

	h := &Hub{
		logger:     logger,
		sink:       sink,
		formatter:  formatter,
		sendBuffer: buffer,
		onTarget:   cfg.OnTargetChange,
		now:        time.Now,
		clients:    map[*Client]bool{},
		pending:    newPendingRegistry(pendingStatusTTL),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame, 64),
		outbound:   make(chan protocol.Envelope, 16),
		snapshots:  make(chan chan []ConnectionInfo),
		notices:    make(chan notify.Message, noticeQueueSize),
		done:       make(chan struct{}),
	}
	h.target.Store(cfg.Target)
	return h
}

// Run processes hub events until ctx is cancelled. All connections are
// closed on return.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	go h.notifyLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			h.logger.Info("🛑 Relay hub stopped")
			return

		case c := <-h.register:
			h.add(c)

		case c := <-h.unregister:
			if h.clients[c] {
				h.remove(c)
				h.logger.WithFields(log.Fields{"client_id": c.id, "clients": h.count.Load()}).Info("🔌 Client disconnected")
			}

		case frame := <-h.inbound:
			h.dispatch(frame.client, frame.raw)

		case env := <-h.outbound:
			h.requestFromChat(env)

		case reply := <-h.snapshots:
			reply <- h.connections()
		}
	}
}

// Accept registers an upgraded connection and starts its pumps.
func (h *Hub) Accept(conn *websocket.Conn, clientType protocol.ClientType) (*Client, error) {
	c := &Client{
		id:          uuid.NewString(),
		clientType:  clientType,
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, h.sendBuffer),
		connectedAt: h.now(),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return nil, ErrHubStopped
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int { return int(h.count.Load()) }

// Connections lists the live clients.
func (h *Hub) Connections(ctx context.Context) ([]ConnectionInfo, error) {
	reply := make(chan []ConnectionInfo, 1)
	select {
	case h.snapshots <- reply:
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case list := <-reply:
		return list, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) NotificationTarget() int64 { return h.target.Load() }

// SetNotificationTarget reassigns the single notification destination.
func (h *Hub) SetNotificationTarget(chatID int64) {
	h.target.Store(chatID)
	h.logger.WithField("chat_id", chatID).Info("🎯 Notification target updated")
	if h.onTarget != nil {
		h.onTarget(chatID)
	}
}

// RequestStatus asks the connected boards for a column overview on behalf of chatID.
func (h *Hub) RequestStatus(ctx context.Context, chatID int64) error {
	env, err := protocol.New(protocol.TypeRequestStatus, nil, h.now())
	if err != nil {
		return err
	}
	return h.enqueueRequest(ctx, env.WithChat(chatID).WithCorrelation(protocol.NewCorrelationID()))
}

// RequestColumnStatus asks the connected boards for one column's tasks.
func (h *Hub) RequestColumnStatus(ctx context.Context, chatID int64, status string) error {
	env, err := protocol.New(protocol.TypeRequestColumnStatus, protocol.ColumnStatusRequest{ColumnStatus: status}, h.now())
	if err != nil {
		return err
	}
	return h.enqueueRequest(ctx, env.WithChat(chatID).WithCorrelation(protocol.NewCorrelationID()))
}

func (h *Hub) enqueueRequest(ctx context.Context, env protocol.Envelope) error {
	select {
	case h.outbound <- env:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) add(c *Client) {
	h.clients[c] = true
	h.count.Add(1)

	env, err := protocol.New(protocol.TypeConnectionEstablished, protocol.ConnectionEstablished{
		ClientID:   c.id,
		ClientType: c.clientType,
		Message:    connectedGreeting,
	}, h.now())
	if err == nil {
		h.sendTo(c, env)
	}
	h.logger.WithFields(log.Fields{
		"client_id":   c.id,
		"client_type": c.clientType,
		"clients":     h.count.Load(),
	}).Info("✅ Client connected")
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Add(-1)
}

func (h *Hub) connections() []ConnectionInfo {
	list := make([]ConnectionInfo, 0, len(h.clients))
	for c := range h.clients {
		list = append(list, ConnectionInfo{ClientID: c.id, ClientType: c.clientType, ConnectedAt: c.connectedAt})
	}
	return list
}

func (h *Hub) sendTo(c *Client, env protocol.Envelope) {
	raw, err := protocol.Encode(env)
	if err != nil {
		h.logger.WithError(err).Error("❌ Failed to encode envelope")
		return
	}
	h.deliver(c, raw)
}

func (h *Hub) deliver(c *Client, raw []byte) {
	select {
	case c.send <- raw:
	default:
		h.remove(c)
		h.logger.WithField("client_id", c.id).Warn("⚠️  Send buffer full, dropping client")
	}
}

// broadcast enqueues raw for every client except exclude. A client whose
// buffer is full is dropped; the others still get the frame.
func (h *Hub) broadcast(raw []byte, exclude *Client) int {
	sent := 0
	for c := range h.clients {
		if c == exclude {
			continue
		}
		h.deliver(c, raw)
		if h.clients[c] {
			sent++
		}
	}
	return sent
}

func (h *Hub) broadcastEnvelope(env protocol.Envelope, exclude *Client) {
	raw, err := protocol.Encode(env)
	if err != nil {
		h.logger.WithError(err).Error("❌ Failed to encode envelope")
		return
	}
	h.broadcast(raw, exclude)
}

// requestFromChat handles a status request issued by the bot.
func (h *Hub) requestFromChat(env protocol.Envelope) {
	h.pending.add(env.CorrelationID, pendingStatus{chatID: env.ChatID, kind: env.Type, createdAt: h.now()})
	h.broadcastEnvelope(env, nil)
	h.logger.WithFields(log.Fields{
		"type":    env.Type,
		"chat_id": env.ChatID,
		"clients": len(h.clients),
	}).Info("📤 Status requested")
}

// notifyLoop delivers notices off the hub goroutine so a slow chat API
// never delays fan-out.
func (h *Hub) notifyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.notices:
			if err := h.sink.Send(ctx, msg); err != nil {
				h.logger.WithError(err).WithField("chat_id", msg.ChatID).Error("❌ Failed to send notification")
			}
		}
	}
}

func (h *Hub) notify(msg notify.Message) {
	select {
	case h.notices <- msg:
	default:
		h.logger.WithField("chat_id", msg.ChatID).Warn("⚠️  Notification queue full, dropping message")
	}
}
