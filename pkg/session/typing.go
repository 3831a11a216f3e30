package session

import (
	"sort"
	"sync"
	"time"
)

// TypingUser is one entry in the currently-typing set.
type TypingUser struct {
	UserID   string
	Username string
}

// typingTracker holds a time-indexed map of user → expiry, swept on a
// single periodic tick. Re-observing a user re-arms their expiry; there
// is never more than one entry per user no matter how many events
// arrive.
type typingTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]typingEntry
}

type typingEntry struct {
	username string
	expires  time.Time
}

func newTypingTracker(ttl time.Duration) *typingTracker {
	return &typingTracker{
		ttl:     ttl,
		entries: make(map[string]typingEntry),
	}
}

// observe records a typing event, re-arming the user's expiry from now.
func (t *typingTracker) observe(userID, username string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[userID] = typingEntry{username: username, expires: now.Add(t.ttl)}
}

// sweep removes entries whose expiry has passed and returns their ids.
func (t *typingTracker) sweep(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []string
	for id, entry := range t.entries {
		if !entry.expires.After(now) {
			expired = append(expired, id)
			delete(t.entries, id)
		}
	}
	return expired
}

// active returns the live typing set sorted by username.
func (t *typingTracker) active(now time.Time) []TypingUser {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := make([]TypingUser, 0, len(t.entries))
	for id, entry := range t.entries {
		if entry.expires.After(now) {
			users = append(users, TypingUser{UserID: id, Username: entry.username})
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// clear drops every entry, used when the channel changes.
func (t *typingTracker) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]typingEntry)
}
