package core

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation transcript. ID may be a local UUID
// until the persistence backend assigns a durable identifier.
type Message struct {
	ID         string         `json:"id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
}

// Clone returns a copy with its own metadata map (values are shared).
func (m Message) Clone() Message {
	c := m
	if m.Metadata != nil {
		c.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// Attachment is a file sent alongside a user message.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	DataURL  string `json:"data_url,omitempty"`
}

// NewID generates a new unique identifier for messages, runs and turns.
func NewID() string { return uuid.NewString() }

// NewUserMessage creates a user-authored message with a fresh local ID.
func NewUserMessage(content string) Message {
	return Message{ID: NewID(), Role: RoleUser, Content: content, CreatedAt: time.Now().UTC()}
}

// NewAssistantMessage creates an assistant message with the given id. An
// empty id is replaced by a fresh local ID.
func NewAssistantMessage(id, content string) Message {
	if id == "" {
		id = NewID()
	}
	return Message{ID: id, Role: RoleAssistant, Content: content, CreatedAt: time.Now().UTC()}
}
