package ws

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"chat-service/internal/directory"
	"chat-service/internal/models"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Max inbound frame size
	maxMessageSize = 64 * 1024

	// Outbound queue depth per connection; a consumer further behind
	// than this is torn down rather than allowed to block the channel.
	sendQueueSize = 256
)

// Client is one physical socket bound to exactly one identity and at
// most one active channel.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity *models.Identity

	id   string
	send chan []byte

	done      chan struct{}
	dead      atomic.Bool
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, identity *models.Identity, connID string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		identity: identity,
		id:       connID,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
	}
}

// close shuts the write side down and unblocks the read pump. Rooms
// call it when tearing down a slow member; the hub calls it on
// disconnect. Idempotent.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.dead.Store(true)
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) closed() bool {
	return c.dead.Load()
}

// enqueue drops the frame when the queue is full; only rooms get to
// tear a connection down for falling behind.
func (c *Client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) enqueueError(code, message string) {
	frame, err := json.Marshal(models.NewErrorFrame(code, message))
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// readPump pumps control frames from the socket into the hub. Runs on
// the connection's goroutine; exits on any transport error, which is
// the only cancellation signal a connection has.
func (c *Client) readPump() {
	defer c.hub.Disconnect(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("unexpected close", "conn", c.id, "user", c.identity.ID, "error", err)
			}
			return
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			slog.Debug("unparseable frame dropped", "conn", c.id, "error", err)
			continue
		}

		switch frame.Type {
		case models.FrameMessage:
			c.hub.SendMessage(c, frame.Content, frame.ReplyToID)
		case models.FrameTyping:
			c.hub.SignalTyping(c)
		case models.FrameSwitchChannel, models.FrameJoin:
			// A post-handshake join is a switch; the identity is already
			// bound to the connection.
			if err := c.hub.Join(c, frame.ChannelID); err != nil {
				if errors.Is(err, directory.ErrChannelNotFound) {
					c.enqueueError(models.CodeChannelNotFound, err.Error())
				}
			}
		default:
			slog.Debug("unknown frame type dropped", "conn", c.id, "type", frame.Type)
		}
	}
}

// writePump pumps queued frames to the socket and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("write failed", "conn", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
