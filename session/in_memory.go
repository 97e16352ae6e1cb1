package session

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
)

// InMemoryStore is a volatile MessageStore keeping messages in a process
// local map. It is safe for concurrent access and best suited for tests or
// one-shot CLI runs. Returned messages are copies.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]core.StoredMessage
	now      func() time.Time
}

// NewInMemoryStore constructs an empty in‑memory message store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string][]core.StoredMessage),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PostMessage appends a message and assigns it a fresh ID.
func (s *InMemoryStore) PostMessage(ctx context.Context, sessionID string, req core.PostMessageRequest) (core.PostMessageResponse, error) {
	if err := ctx.Err(); err != nil {
		return core.PostMessageResponse{}, err
	}
	if sessionID == "" {
		return core.PostMessageResponse{}, ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := core.StoredMessage{
		ID:          core.NewID(),
		SessionID:   sessionID,
		MessageType: req.MessageType,
		Content:     req.Content,
		AgentType:   req.AgentType,
		Metadata:    maps.Clone(req.Metadata),
		CreatedAt:   s.now(),
	}
	s.sessions[sessionID] = append(s.sessions[sessionID], m)
	return core.PostMessageResponse{ID: m.ID}, nil
}

// UpdateMessage patches content and merges metadata keys.
func (s *InMemoryStore) UpdateMessage(ctx context.Context, sessionID, messageID string, req core.UpdateMessageRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.sessions[sessionID]
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		if req.Content != nil {
			msgs[i].Content = *req.Content
		}
		if len(req.Metadata) > 0 {
			merged := maps.Clone(msgs[i].Metadata)
			if merged == nil {
				merged = make(map[string]any, len(req.Metadata))
			}
			maps.Copy(merged, req.Metadata)
			msgs[i].Metadata = merged
		}
		return nil
	}
	return fmt.Errorf("session %s message %s: %w", sessionID, messageID, ErrNotFound)
}

// ListMessages returns a page of messages in creation order. A
// non-positive limit returns everything after offset.
func (s *InMemoryStore) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]core.StoredMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return page(s.sessions[sessionID], limit, offset), nil
}

// Sessions returns the known session IDs, sorted.
func (s *InMemoryStore) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func page(msgs []core.StoredMessage, limit, offset int) []core.StoredMessage {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(msgs) {
		return []core.StoredMessage{}
	}
	end := len(msgs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]core.StoredMessage, 0, end-offset)
	for _, m := range msgs[offset:end] {
		m.Metadata = maps.Clone(m.Metadata)
		out = append(out, m)
	}
	return out
}
