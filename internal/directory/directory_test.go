package directory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-service/internal/models"
)

func TestListGroupsByCategoryThenName(t *testing.T) {
	d := New([]models.Channel{
		{ID: "c", Name: "zulu", Category: "beta"},
		{ID: "a", Name: "mike", Category: "alpha"},
		{ID: "b", Name: "alpha", Category: "beta"},
	})

	got := d.List()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
}

func TestGet(t *testing.T) {
	d := NewWithDefaults()

	ch, err := d.Get("general")
	require.NoError(t, err)
	assert.Equal(t, "general", ch.Name)

	_, err = d.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestDefaultPrefersGeneral(t *testing.T) {
	d := New([]models.Channel{
		{ID: "x", Name: "announcements", Category: "a"},
		{ID: "y", Name: "general", Category: "z"},
	})

	ch, err := d.Default()
	require.NoError(t, err)
	assert.Equal(t, "y", ch.ID)
}

func TestDefaultFallsBackToFirst(t *testing.T) {
	d := New([]models.Channel{
		{ID: "x", Name: "support", Category: "b"},
		{ID: "y", Name: "lounge", Category: "a"},
	})

	ch, err := d.Default()
	require.NoError(t, err)
	assert.Equal(t, "y", ch.ID)
}

func TestDefaultEmptyDirectory(t *testing.T) {
	d := New(nil)
	_, err := d.Default()
	assert.ErrorIs(t, err, ErrEmptyDirectory)
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.json")
	seed := `[
		{"id": "general", "name": "general", "category": "ecosystem", "isDefault": true},
		{"id": "help", "name": "help", "description": "Ask away", "category": "app-support"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	d, err := NewFromFile(path)
	require.NoError(t, err)

	assert.Len(t, d.List(), 2)
	ch, err := d.Get("help")
	require.NoError(t, err)
	assert.Equal(t, "Ask away", ch.Description)

	def, err := d.Default()
	require.NoError(t, err)
	assert.Equal(t, "general", def.ID)
}

func TestNewFromFileErrors(t *testing.T) {
	_, err := NewFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = NewFromFile(path)
	assert.Error(t, err)
}
