package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kanbansync/internal/handler"
	"kanbansync/internal/protocol"
	"kanbansync/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTest(t *testing.T) (*gin.Engine, *relay.Hub) {
	gin.SetMode(gin.TestMode)
	logger := log.New()
	logger.SetOutput(io.Discard)

	hub := relay.NewHub(relay.Config{Logger: logger})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	h := handler.NewRelayHandler(hub, logger)
	r := gin.New()
	r.GET("/ws", h.ServeWS)
	r.GET("/health", h.Health)
	r.GET("/connections", h.Connections)
	r.GET("/notifications/target", h.GetNotificationTarget)
	r.PUT("/notifications/target", h.SetNotificationTarget)
	return r, hub
}

func TestHealth(t *testing.T) {
	// Arrange
	router, _ := setupTest(t)
	req, _ := http.NewRequest("GET", "/health", nil)

	// Act
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	// Assert
	assert.Equal(t, http.StatusOK, resp.Code)
	var body handler.HealthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 0, body.Clients)
}

func TestNotificationTarget_SetAndGet(t *testing.T) {
	router, hub := setupTest(t)

	jsonBody, _ := json.Marshal(handler.NotificationTargetRequest{ChatID: -100777})
	req, _ := http.NewRequest("PUT", "/notifications/target", bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(-100777), hub.NotificationTarget())

	req, _ = http.NewRequest("GET", "/notifications/target", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	var body handler.NotificationTargetResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, int64(-100777), body.ChatID)
	assert.True(t, body.Set)
}

func TestNotificationTarget_InvalidBody(t *testing.T) {
	router, hub := setupTest(t)

	req, _ := http.NewRequest("PUT", "/notifications/target", strings.NewReader(`{"chatId":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, int64(0), hub.NotificationTarget())
}

func TestServeWS_RegistersClient(t *testing.T) {
	// Arrange
	router, hub := setupTest(t)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?clientType=miniApp"

	// Act
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Assert
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeConnectionEstablished, env.Type)
	var info protocol.ConnectionEstablished
	require.NoError(t, env.DecodePayload(&info))
	assert.Equal(t, protocol.ClientMiniApp, info.ClientType)
	assert.Equal(t, 1, hub.ClientCount())

	resp, err := http.Get(srv.URL + "/connections")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list handler.ConnectionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, info.ClientID, list.Connections[0].ClientID)
}
