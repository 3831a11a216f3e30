// Package redis owns the Redis connection plus the pieces built on it:
// the cross-instance event bridge and the revocation set.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// Connect parses the URL, opens a client, and verifies the connection
// with a ping.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	slog.Info("connected to redis")
	return rdb, nil
}

const revokedKey = "chat:revoked"

// RevocationSet checks account revocation against a shared Redis set
// maintained by the SSO service.
type RevocationSet struct {
	rdb *redis.Client
}

func NewRevocationSet(rdb *redis.Client) *RevocationSet {
	return &RevocationSet{rdb: rdb}
}

func (r *RevocationSet) IsRevoked(ctx context.Context, identityID string) (bool, error) {
	revoked, err := r.rdb.SIsMember(ctx, revokedKey, identityID).Result()
	if err != nil {
		return false, fmt.Errorf("revocation lookup: %w", err)
	}
	return revoked, nil
}
