package history

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"

	"chat-service/internal/models"
)

// RedisStore keeps each channel's log in a Redis list, trimmed to the
// cap on every append so all instances share one bounded history.
type RedisStore struct {
	rdb *redis.Client
	cap int
}

func NewRedisStore(rdb *redis.Client, cap int) *RedisStore {
	if cap <= 0 {
		cap = 50
	}
	return &RedisStore{rdb: rdb, cap: cap}
}

func historyKey(channelID string) string {
	return "chat:history:" + channelID
}

func (s *RedisStore) Append(ctx context.Context, msg models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, historyKey(msg.ChannelID), payload)
	pipe.LTrim(ctx, historyKey(msg.ChannelID), 0, int64(s.cap)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > s.cap {
		limit = s.cap
	}

	// Newest first in the list; reverse into chronological order.
	raw, err := s.rdb.LRange(ctx, historyKey(channelID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	out := make([]models.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var msg models.Message
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}
