package ws

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"chat-service/internal/models"
)

// storeTimeout bounds history reads and writes done inside the room
// loop so a stalled store cannot wedge a channel forever.
const storeTimeout = 5 * time.Second

type inboundMessage struct {
	client    *Client
	content   string
	replyToID string
}

type memberReq struct {
	client *Client
	done   chan struct{}
	ok     bool
}

// room owns one channel: its member set and its serialized accept log.
// Everything mutable is touched only by the run goroutine, which makes
// fan-out order equal acceptance order for every member.
type room struct {
	id  string
	hub *Hub

	join    chan *memberReq
	leave   chan *memberReq
	accept  chan inboundMessage
	typing  chan *Client
	forward chan []byte

	count   atomic.Int32
	members map[*Client]struct{}
}

func newRoom(h *Hub, channelID string) *room {
	return &room{
		id:      channelID,
		hub:     h,
		join:    make(chan *memberReq),
		leave:   make(chan *memberReq),
		accept:  make(chan inboundMessage, 64),
		typing:  make(chan *Client, 64),
		forward: make(chan []byte, 64),
		members: make(map[*Client]struct{}),
	}
}

func (r *room) add(c *Client) bool {
	req := &memberReq{client: c, done: make(chan struct{})}
	r.join <- req
	<-req.done
	return req.ok
}

func (r *room) rejoin(c *Client) {
	req := &memberReq{client: c, done: make(chan struct{})}
	r.join <- req
	<-req.done
}

func (r *room) remove(c *Client) {
	req := &memberReq{client: c, done: make(chan struct{})}
	r.leave <- req
	<-req.done
}

func (r *room) run() {
	for {
		select {
		case req := <-r.join:
			r.handleJoin(req)
		case req := <-r.leave:
			r.handleLeave(req)
		case in := <-r.accept:
			r.handleAccept(in)
		case c := <-r.typing:
			r.handleTyping(c)
		case frame := <-r.forward:
			if r.fanout(frame, nil) {
				r.broadcastPresence()
			}
		}
	}
}

func (r *room) handleJoin(req *memberReq) {
	defer close(req.done)

	c := req.client
	if c.closed() {
		return
	}

	r.members[c] = struct{}{}
	r.count.Store(int32(len(r.members)))
	req.ok = true

	r.replayHistory(c)
	r.broadcastPresence()

	slog.Debug("member joined", "channel", r.id, "user", c.identity.ID, "conn", c.id, "online", len(r.members))
}

func (r *room) handleLeave(req *memberReq) {
	defer close(req.done)

	if _, ok := r.members[req.client]; !ok {
		return
	}
	delete(r.members, req.client)
	r.count.Store(int32(len(r.members)))
	r.broadcastPresence()

	slog.Debug("member left", "channel", r.id, "conn", req.client.id, "online", len(r.members))
}

// handleAccept is the single serialization point for a channel's log:
// receive time is assigned here and every member sees messages in this
// order.
func (r *room) handleAccept(in inboundMessage) {
	if _, ok := r.members[in.client]; !ok {
		return
	}

	content := strings.TrimSpace(in.content)
	if content == "" {
		return
	}

	msg := models.NewMessage(uuid.New().String(), r.id, in.client.identity, content, in.replyToID, time.Now().UTC())

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	if err := r.hub.store.Append(ctx, msg); err != nil {
		slog.Error("history append failed", "channel", r.id, "error", err)
	}
	cancel()

	frame, err := json.Marshal(models.NewMessageFrame(msg))
	if err != nil {
		slog.Error("marshal message frame", "channel", r.id, "error", err)
		return
	}

	if r.fanout(frame, nil) {
		r.broadcastPresence()
	}
	r.publish(frame)
}

func (r *room) handleTyping(c *Client) {
	if _, ok := r.members[c]; !ok {
		return
	}

	frame, err := json.Marshal(models.NewTypingFrame(r.id, c.identity.ID, c.identity.Username))
	if err != nil {
		slog.Error("marshal typing frame", "channel", r.id, "error", err)
		return
	}

	if r.fanout(frame, c) {
		r.broadcastPresence()
	}
	r.publish(frame)
}

func (r *room) replayHistory(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	messages, err := r.hub.store.Recent(ctx, r.id, r.hub.historyLimit)
	cancel()
	if err != nil {
		// The client still needs a history frame to consider the join
		// complete; an empty replay is the lossy-but-live fallback.
		slog.Error("history read failed", "channel", r.id, "error", err)
		messages = nil
	}

	frame, err := json.Marshal(models.NewHistoryFrame(r.id, messages))
	if err != nil {
		slog.Error("marshal history frame", "channel", r.id, "error", err)
		return
	}
	r.send(c, frame)
}

// broadcastPresence recomputes the count and tells the channel. Sending
// can itself tear down dead members, so recompute until stable.
func (r *room) broadcastPresence() {
	for {
		frame, err := json.Marshal(models.NewPresenceFrame(r.id, len(r.members)))
		if err != nil {
			slog.Error("marshal presence frame", "channel", r.id, "error", err)
			return
		}
		if !r.fanout(frame, nil) {
			return
		}
	}
}

// fanout writes one frame to every member except skip. A member whose
// send queue is full is torn down on the spot; it never blocks or
// delays the others (at-most-once delivery per connection). Reports
// whether any member was torn down, so callers follow up with a fresh
// presence broadcast for the survivors.
func (r *room) fanout(frame []byte, skip *Client) bool {
	before := len(r.members)
	for c := range r.members {
		if c == skip {
			continue
		}
		r.send(c, frame)
	}
	r.count.Store(int32(len(r.members)))
	return len(r.members) < before
}

func (r *room) send(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		slog.Warn("send queue full, dropping connection", "channel", r.id, "conn", c.id)
		delete(r.members, c)
		r.hub.dropConn(c, r)
		c.close()
	}
}

func (r *room) publish(frame []byte) {
	if r.hub.publisher == nil {
		return
	}
	if err := r.hub.publisher.PublishFrame(r.id, frame); err != nil {
		slog.Error("bridge publish failed", "channel", r.id, "error", err)
	}
}
