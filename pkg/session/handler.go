package session

import "chat-service/internal/models"

// Handler receives session events. Implementations must not block;
// callbacks are invoked from the session's own goroutines.
type Handler interface {
	OnStateChange(state State)
	OnHistory(messages []models.Message)
	OnMessage(msg models.Message)
	OnTyping(userID, username string)
	OnTypingExpired(userID string)
	OnPresence(onlineCount int)
	OnError(code, message string)
}

// NopHandler ignores every event. Embed it to implement only the
// callbacks you care about.
type NopHandler struct{}

func (NopHandler) OnStateChange(State)        {}
func (NopHandler) OnHistory([]models.Message) {}
func (NopHandler) OnMessage(models.Message)   {}
func (NopHandler) OnTyping(string, string)    {}
func (NopHandler) OnTypingExpired(string)     {}
func (NopHandler) OnPresence(int)             {}
func (NopHandler) OnError(string, string)     {}
