package handler

import (
	"context"
	"net/http"
	"time"

	"kanbansync/internal/protocol"
	"kanbansync/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Hub is the relay surface the HTTP handlers need.
type Hub interface {
	Accept(conn *websocket.Conn, clientType protocol.ClientType) (*relay.Client, error)
	ClientCount() int
	Connections(ctx context.Context) ([]relay.ConnectionInfo, error)
	NotificationTarget() int64
	SetNotificationTarget(chatID int64)
}

type RelayHandler struct {
	hub      Hub
	upgrader websocket.Upgrader
	logger   log.FieldLogger
	started  time.Time
}

func NewRelayHandler(hub Hub, logger log.FieldLogger) *RelayHandler {
	return &RelayHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// board clients are served from other origins (Telegram Mini App, static hosting)
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		started: time.Now(),
	}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Uptime  string `json:"uptime"`
}

type ConnectionsResponse struct {
	Count       int                   `json:"count"`
	Connections []relay.ConnectionInfo `json:"connections"`
}

type NotificationTargetRequest struct {
	ChatID int64 `json:"chatId" binding:"required"`
}

type NotificationTargetResponse struct {
	ChatID int64 `json:"chatId"`
	Set    bool  `json:"set"`
}

// ServeWS upgrades the request to a board connection.
// @Summary      Open a board sync connection
// @Tags         Relay
// @Param        clientType  query  string  false  "browser or miniApp"
// @Success      101
// @Router       /ws [get]
func (h *RelayHandler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.WithError(err).Warn("⚠️  WebSocket upgrade failed")
		return
	}
	if _, err := h.hub.Accept(conn, protocol.ParseClientType(c.Query("clientType"))); err != nil {
		h.logger.WithError(err).Error("❌ Relay refused connection")
	}
}

// Health reports liveness and the live connection count.
// @Summary      Health check
// @Tags         Relay
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /health [get]
func (h *RelayHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Clients: h.hub.ClientCount(),
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	})
}

// Connections lists connected board clients.
// @Summary      List connected clients
// @Tags         Relay
// @Produce      json
// @Success      200  {object}  ConnectionsResponse
// @Failure      503  {object}  map[string]string
// @Router       /connections [get]
func (h *RelayHandler) Connections(c *gin.Context) {
	list, err := h.hub.Connections(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Relay is not running"})
		return
	}
	c.JSON(http.StatusOK, ConnectionsResponse{Count: len(list), Connections: list})
}

// GetNotificationTarget returns the chat that receives board notifications.
// @Summary      Get notification chat
// @Tags         Notifications
// @Produce      json
// @Success      200  {object}  NotificationTargetResponse
// @Router       /notifications/target [get]
func (h *RelayHandler) GetNotificationTarget(c *gin.Context) {
	id := h.hub.NotificationTarget()
	c.JSON(http.StatusOK, NotificationTargetResponse{ChatID: id, Set: id != 0})
}

// SetNotificationTarget reassigns the notification chat.
// @Summary      Set notification chat
// @Tags         Notifications
// @Accept       json
// @Produce      json
// @Param        request  body  NotificationTargetRequest  true  "Target chat"
// @Success      200  {object}  NotificationTargetResponse
// @Failure      400  {object}  map[string]string
// @Router       /notifications/target [put]
func (h *RelayHandler) SetNotificationTarget(c *gin.Context) {
	var req NotificationTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	h.hub.SetNotificationTarget(req.ChatID)
	c.JSON(http.StatusOK, NotificationTargetResponse{ChatID: req.ChatID, Set: true})
}
