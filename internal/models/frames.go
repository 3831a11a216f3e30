package models

// Wire frame types exchanged over one socket per connection. Client and
// server agree on a flat JSON envelope distinguished by "type".
const (
	FrameJoin          = "join"
	FrameSwitchChannel = "switch_channel"
	FrameMessage       = "message"
	FrameTyping        = "typing"
	FrameHistory       = "history"
	FramePresence      = "presence"
	FrameError         = "error"
)

// Error codes carried by error frames.
const (
	CodeInvalidToken    = "invalid_token"
	CodeRevoked         = "revoked"
	CodeChannelNotFound = "channel_not_found"
	CodeBadPayload      = "bad_payload"
)

// ClientFrame is every client→server control frame. Fields are populated
// per Type: join carries Token+ChannelID, switch_channel carries
// ChannelID, message carries Content (+ optional ReplyToID), typing
// carries nothing.
type ClientFrame struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	Content   string `json:"content,omitempty"`
	ReplyToID string `json:"replyToId,omitempty"`
}

// HistoryFrame replays the newest capped slice of a channel's log in
// chronological order. Sent once per join/switch.
type HistoryFrame struct {
	Type      string    `json:"type"`
	ChannelID string    `json:"channelId"`
	Messages  []Message `json:"messages"`
}

// MessageFrame is one accepted message fanned out to a channel, with the
// message fields flattened into the frame.
type MessageFrame struct {
	Type string `json:"type"`
	Message
}

// TypingFrame signals that a user is typing. Ephemeral and lossy; every
// receiver expires it locally.
type TypingFrame struct {
	Type      string `json:"type"`
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
}

// PresenceFrame carries the recomputed live connection count for a
// channel after any membership change.
type PresenceFrame struct {
	Type        string `json:"type"`
	ChannelID   string `json:"channelId"`
	OnlineCount int    `json:"onlineCount"`
}

// ErrorFrame reports a rejected operation without closing the
// connection, except during the join handshake where auth failures are
// followed by a close.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHistoryFrame(channelID string, messages []Message) HistoryFrame {
	if messages == nil {
		messages = []Message{}
	}
	return HistoryFrame{Type: FrameHistory, ChannelID: channelID, Messages: messages}
}

func NewMessageFrame(msg Message) MessageFrame {
	return MessageFrame{Type: FrameMessage, Message: msg}
}

func NewTypingFrame(channelID, userID, username string) TypingFrame {
	return TypingFrame{Type: FrameTyping, ChannelID: channelID, UserID: userID, Username: username}
}

func NewPresenceFrame(channelID string, onlineCount int) PresenceFrame {
	return PresenceFrame{Type: FramePresence, ChannelID: channelID, OnlineCount: onlineCount}
}

func NewErrorFrame(code, message string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Code: code, Message: message}
}
