// Package ws is the message broadcast hub: per-channel membership,
// accept/fan-out ordering, presence counting, and the typing relay.
package ws

import (
	"fmt"
	"log/slog"
	"sync"

	"chat-service/internal/directory"
	"chat-service/internal/history"
)

// FramePublisher mirrors accepted frames to other service instances.
// May be left nil for single-instance deployments.
type FramePublisher interface {
	PublishFrame(channelID string, frame []byte) error
}

// Hub owns one room per channel. Rooms run independently, so different
// channels are processed fully in parallel; within one channel the room
// goroutine serializes membership changes and message acceptance.
type Hub struct {
	directory    *directory.Directory
	store        history.Store
	publisher    FramePublisher
	historyLimit int

	mu    sync.Mutex
	rooms map[string]*room
	conns map[*Client]*room
}

func NewHub(dir *directory.Directory, store history.Store, historyLimit int, publisher FramePublisher) *Hub {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Hub{
		directory:    dir,
		store:        store,
		publisher:    publisher,
		historyLimit: historyLimit,
		rooms:        make(map[string]*room),
		conns:        make(map[*Client]*room),
	}
}

// Join moves a connection into a channel. A connection already in
// another channel leaves it first, as one logical step, so it is never
// counted in two channels at once. The joining connection receives the
// channel's recent history followed by a presence update.
func (h *Hub) Join(c *Client, channelID string) error {
	if _, err := h.directory.Get(channelID); err != nil {
		return err
	}

	target := h.room(channelID)

	h.mu.Lock()
	current := h.conns[c]
	h.mu.Unlock()

	if current == target {
		// Re-join of the active channel still replays history.
		target.rejoin(c)
		return nil
	}
	if current != nil {
		current.remove(c)
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
	}

	if !target.add(c) {
		return fmt.Errorf("connection already closed")
	}

	h.mu.Lock()
	h.conns[c] = target
	h.mu.Unlock()
	return nil
}

// Disconnect tears down a connection's membership and its write side.
// Safe to call more than once.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	current := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()

	if current != nil {
		current.remove(c)
	}
	c.close()
}

// SendMessage routes a message frame from a connection into its current
// room. Dropped silently when the connection has no membership.
func (h *Hub) SendMessage(c *Client, content, replyToID string) {
	if r := h.roomOf(c); r != nil {
		r.accept <- inboundMessage{client: c, content: content, replyToID: replyToID}
	}
}

// SignalTyping relays a typing event to the other members of the
// connection's channel.
func (h *Hub) SignalTyping(c *Client) {
	if r := h.roomOf(c); r != nil {
		r.typing <- c
	}
}

// Forward delivers a frame accepted by another instance to local
// members. Channels with no local room are skipped; a busy room drops
// the frame rather than block the bridge.
func (h *Hub) Forward(channelID string, frame []byte) {
	h.mu.Lock()
	r := h.rooms[channelID]
	h.mu.Unlock()
	if r == nil {
		return
	}

	select {
	case r.forward <- frame:
	default:
		slog.Warn("bridge frame dropped, room busy", "channel", channelID)
	}
}

// OnlineCount reports the live connection count for a channel.
func (h *Hub) OnlineCount(channelID string) int {
	h.mu.Lock()
	r := h.rooms[channelID]
	h.mu.Unlock()
	if r == nil {
		return 0
	}
	return int(r.count.Load())
}

func (h *Hub) room(channelID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[channelID]
	if !ok {
		r = newRoom(h, channelID)
		h.rooms[channelID] = r
		go r.run()
	}
	return r
}

func (h *Hub) roomOf(c *Client) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[c]
}

// dropConn is called by a room that tore down a slow or dead member, so
// the hub stops routing for it.
func (h *Hub) dropConn(c *Client, r *room) {
	h.mu.Lock()
	if h.conns[c] == r {
		delete(h.conns, c)
	}
	h.mu.Unlock()
}
