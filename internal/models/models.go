package models

import "time"

// Role of an identity within chat. Assigned by the SSO service, never
// changed here.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleBot    Role = "bot"
)

// Identity is an authenticated user record issued by the external SSO.
// This subsystem references identities but never mutates them.
type Identity struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	Email       string  `json:"email"`
	AvatarColor string  `json:"avatarColor"`
	Role        Role    `json:"role"`
	ExternalRef *string `json:"externalRef,omitempty"`
}

// Channel is a named conversation partition. Owned by the directory,
// read-only everywhere else.
type Channel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	IsDefault   *bool  `json:"isDefault,omitempty"`
}

// Message is an accepted chat message. Immutable once created; CreatedAt
// is assigned by the hub at accept time and is the sole ordering key
// within a channel. Author display fields are snapshotted at creation so
// later identity edits do not rewrite history.
type Message struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channelId"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	AvatarColor string    `json:"avatarColor"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	ReplyToID   string    `json:"replyToId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewMessage snapshots the author's display fields into a message.
func NewMessage(id string, channelID string, author *Identity, content, replyToID string, createdAt time.Time) Message {
	return Message{
		ID:          id,
		ChannelID:   channelID,
		UserID:      author.ID,
		Username:    author.Username,
		AvatarColor: author.AvatarColor,
		Role:        author.Role,
		Content:     content,
		ReplyToID:   replyToID,
		CreatedAt:   createdAt,
	}
}
