// Package directory holds the registry of named channels. The registry
// is read-mostly: it is seeded at startup (from a JSON file or built-in
// defaults) and only read afterwards.
package directory

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"chat-service/internal/models"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrEmptyDirectory  = errors.New("channel directory is empty")
)

// Directory is the channel registry.
type Directory struct {
	mu       sync.RWMutex
	channels map[string]models.Channel
	ordered  []models.Channel
}

// New builds a directory from a channel list. Later duplicates of an id
// overwrite earlier ones.
func New(channels []models.Channel) *Directory {
	d := &Directory{channels: make(map[string]models.Channel)}
	for _, ch := range channels {
		d.channels[ch.ID] = ch
	}
	d.reorder()
	return d
}

// NewFromFile loads the channel list from a JSON seed file.
func NewFromFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}
	var channels []models.Channel
	if err := json.Unmarshal(data, &channels); err != nil {
		return nil, fmt.Errorf("parse channels file: %w", err)
	}
	return New(channels), nil
}

// NewWithDefaults returns a directory seeded with the stock channel set.
func NewWithDefaults() *Directory {
	isDefault := true
	return New([]models.Channel{
		{ID: "general", Name: "general", Description: "General discussion", Category: "ecosystem", IsDefault: &isDefault},
		{ID: "introductions", Name: "introductions", Description: "Say hello", Category: "ecosystem"},
		{ID: "announcements", Name: "announcements", Description: "Project news", Category: "ecosystem"},
		{ID: "app-support", Name: "app-support", Description: "Help with the app", Category: "app-support"},
		{ID: "bug-reports", Name: "bug-reports", Description: "Something broken?", Category: "app-support"},
	})
}

// List returns every channel grouped by category, then by name. The
// order is stable across calls.
func (d *Directory) List() []models.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.Channel, len(d.ordered))
	copy(out, d.ordered)
	return out
}

// Get looks up a channel by id.
func (d *Directory) Get(id string) (models.Channel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ch, ok := d.channels[id]
	if !ok {
		return models.Channel{}, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	return ch, nil
}

// Default returns the channel named "general" if present, else the
// first channel in listing order. Callers must treat ErrEmptyDirectory
// as chat being unavailable.
func (d *Directory) Default() (models.Channel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.ordered) == 0 {
		return models.Channel{}, ErrEmptyDirectory
	}
	for _, ch := range d.ordered {
		if ch.Name == "general" {
			return ch, nil
		}
	}
	return d.ordered[0], nil
}

func (d *Directory) reorder() {
	ordered := make([]models.Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		ordered = append(ordered, ch)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Category != ordered[j].Category {
			return ordered[i].Category < ordered[j].Category
		}
		return ordered[i].Name < ordered[j].Name
	})
	d.ordered = ordered
}
