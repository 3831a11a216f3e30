package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const channelPrefix = "chat:channel:"

// envelope wraps a server→client frame for cross-instance transport.
// Origin lets an instance skip frames it published itself: local fan-out
// already delivered them in acceptance order.
type envelope struct {
	Origin    string          `json:"origin"`
	ChannelID string          `json:"channelId"`
	Frame     json.RawMessage `json:"frame"`
}

// Forwarder receives frames accepted by other instances for local
// delivery.
type Forwarder interface {
	Forward(channelID string, frame []byte)
}

// Bridge fans accepted frames out across service instances over Redis
// pub/sub. Presence frames are never bridged: each instance's count
// covers its own connections.
type Bridge struct {
	rdb    *redis.Client
	origin string
}

func NewBridge(rdb *redis.Client) *Bridge {
	return &Bridge{rdb: rdb, origin: uuid.New().String()}
}

// PublishFrame sends one already-encoded frame to every other instance.
func (b *Bridge) PublishFrame(channelID string, frame []byte) error {
	payload, err := json.Marshal(envelope{
		Origin:    b.origin,
		ChannelID: channelID,
		Frame:     frame,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := b.rdb.Publish(context.Background(), channelPrefix+channelID, payload).Err(); err != nil {
		return fmt.Errorf("publish frame: %w", err)
	}
	return nil
}

// Subscribe listens for frames from other instances and hands them to
// the forwarder. Blocks until ctx is cancelled.
func (b *Bridge) Subscribe(ctx context.Context, forwarder Forwarder) error {
	pubsub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe confirmation: %w", err)
	}
	slog.Info("subscribed to redis bridge", "pattern", channelPrefix+"*")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return nil
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Error("bad bridge envelope", "channel", msg.Channel, "error", err)
				continue
			}
			if env.Origin == b.origin {
				continue
			}

			channelID := env.ChannelID
			if channelID == "" {
				channelID = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			forwarder.Forward(channelID, env.Frame)
		}
	}
}
