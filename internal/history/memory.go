package history

import (
	"context"
	"sync"

	"chat-service/internal/models"
)

// MemoryStore keeps capped per-channel logs in process memory. Used in
// single-instance deployments and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	cap      int
	messages map[string][]models.Message
}

// NewMemoryStore builds a store retaining at most cap messages per
// channel. A cap of zero or less falls back to 50.
func NewMemoryStore(cap int) *MemoryStore {
	if cap <= 0 {
		cap = 50
	}
	return &MemoryStore{
		cap:      cap,
		messages: make(map[string][]models.Message),
	}
}

func (s *MemoryStore) Append(_ context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := append(s.messages[msg.ChannelID], msg)
	if len(log) > s.cap {
		log = log[len(log)-s.cap:]
	}
	s.messages[msg.ChannelID] = log
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, channelID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.messages[channelID]
	if limit <= 0 || limit > len(log) {
		limit = len(log)
	}

	tail := log[len(log)-limit:]
	out := make([]models.Message, len(tail))
	copy(out, tail)
	return out, nil
}
