package agent

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"kanbansync/internal/protocol"

	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	readWait         = 90 * time.Second
	handshakeTimeout = 10 * time.Second
	maxMessageSize   = 4 << 20
)

// Conn is one duplex text-frame connection to the relay.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// WebsocketDialer connects to the relay over gorilla/websocket and
// announces the client role in the clientType query parameter.
type WebsocketDialer struct {
	ClientType       protocol.ClientType
	HandshakeTimeout time.Duration
}

func (d WebsocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	if d.ClientType != "" {
		q := u.Query()
		q.Set("clientType", string(d.ClientType))
		u.RawQuery = q.Encode()
	}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = handshakeTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	c, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	c.SetReadLimit(maxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(readWait))
	// relay pings keep the read deadline moving
	c.SetPingHandler(func(data string) error {
		_ = c.SetReadDeadline(time.Now().Add(readWait))
		return c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
		if mt == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	return c.conn.Close()
}
