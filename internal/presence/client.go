package presence

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-messenger/internal/config"
	"github.com/weiawesome/wes-messenger/pkg/log"
)

// Client is a WebSocket push connection of one user. The channel is
// push-only: inbound frames are read to detect close and answer pings,
// then discarded.
type Client struct {
	id       string
	userID   string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	registry *Registry
	config   config.WebSocketConfig
}

func NewClient(id, userID string, conn *websocket.Conn, registry *Registry, cfg config.WebSocketConfig) *Client {
	buf := cfg.SendBuffer
	if buf <= 0 {
		buf = 256
	}
	return &Client{
		id:       id,
		userID:   userID,
		conn:     conn,
		send:     make(chan []byte, buf),
		done:     make(chan struct{}),
		registry: registry,
		config:   cfg,
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Deliver enqueues data for the write pump.
func (c *Client) Deliver(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		l := log.L()
		l.Warn().Str(log.FieldUserID, c.userID).Str(log.FieldConnID, c.id).Msg("send buffer full, dropping push")
		return false
	}
}

// Close stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReadPump blocks until the peer goes away, then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.registry.Unregister(c)
		c.Close()
		c.conn.Close()
	}()

	if c.config.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldUserID, c.userID).Str(log.FieldConnID, c.id).Msg("websocket read error")
			}
			return
		}
	}
}

// WritePump drains the send buffer to the socket and keeps it alive
// with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
