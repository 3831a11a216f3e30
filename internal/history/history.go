// Package history persists each channel's message log. The log is a
// capped ring: a client that reconnects only recovers the newest N
// messages, never a precise continuation point.
package history

import (
	"context"

	"chat-service/internal/models"
)

// Store is the per-channel append log. Append is called once per
// accepted message; Recent returns the newest limit messages in
// chronological (oldest first) order.
type Store interface {
	Append(ctx context.Context, msg models.Message) error
	Recent(ctx context.Context, channelID string, limit int) ([]models.Message, error)
}
