package websocket

import (
	"net"
	"sync"
	"time"

	"coderoom/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

// Client is one websocket connection. It satisfies registry.Conn so hubs
// can deliver to it without knowing about the transport.
type Client struct {
	id              string
	manager         *Manager
	conn            *websocket.Conn
	send            chan []byte
	done            chan struct{}
	closeOnce       sync.Once
	maxMessageBytes int64
}

func NewClient(manager *Manager, conn *websocket.Conn, maxMessageBytes int64) *Client {
	return &Client{
		id:              uuid.NewString(),
		manager:         manager,
		conn:            conn,
		send:            make(chan []byte, sendBufferSize),
		done:            make(chan struct{}),
		maxMessageBytes: maxMessageBytes,
	}
}

func (c *Client) ID() string { return c.id }

// Send queues data without blocking. It reports false when the queue is
// full or the client is closed.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) RemoteAddr() string {
	addr := c.conn.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) ReadPump() {
	defer func() {
		c.manager.Disconnect(c.id)
		c.Close()
		c.conn.Close()
	}()

	if c.maxMessageBytes > 0 {
		c.conn.SetReadLimit(c.maxMessageBytes)
	}
	// Set read deadline and pong handler for connection health
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Error("WebSocket error on %s: %v", c.id, err)
			}
			break
		}
		c.manager.HandleMessage(c.id, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error on %s: %v", c.id, err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
