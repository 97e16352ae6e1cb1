package core

import (
	"context"
	"time"
)

// PostMessageRequest is the payload for persisting one chat message.
type PostMessageRequest struct {
	MessageType string         `json:"message_type"`
	Content     string         `json:"content"`
	AgentType   string         `json:"agent_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// PostMessageResponse carries the durable identifier assigned by the backend.
type PostMessageResponse struct {
	ID string `json:"id"`
}

// UpdateMessageRequest patches an already persisted message. Nil fields are
// left untouched.
type UpdateMessageRequest struct {
	Content  *string        `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// StoredMessage is a message as returned by the persistence backend.
type StoredMessage struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	MessageType string         `json:"message_type"`
	Content     string         `json:"content"`
	AgentType   string         `json:"agent_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Message converts the stored representation into a transcript message.
func (s StoredMessage) Message() Message {
	role := Role(s.MessageType)
	switch role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
	default:
		role = RoleAssistant
	}
	return Message{ID: s.ID, Role: role, Content: s.Content, Metadata: s.Metadata, CreatedAt: s.CreatedAt}
}

// MessageStore is the persistence API of chat sessions. Implementations must
// be safe for concurrent use.
type MessageStore interface {
	PostMessage(ctx context.Context, sessionID string, req PostMessageRequest) (PostMessageResponse, error)
	UpdateMessage(ctx context.Context, sessionID, messageID string, req UpdateMessageRequest) error
	ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]StoredMessage, error)
}
