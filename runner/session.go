package runner

import (
	"context"
	"fmt"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/persist"
	"github.com/moonshubh/Agent-Sparrow-sub001/session"
)

// HistoryPageSize is the page size used when a store cannot list a whole
// session at once.
const HistoryPageSize = 100

// historyLister is implemented by stores that fetch a whole session
// efficiently.
type historyLister interface {
	ListAll(ctx context.Context, sessionID string) ([]core.StoredMessage, error)
}

// LoadSession replaces the transcript with the persisted history of
// sessionID. Persisted messages are marked as such and artifacts are rebuilt
// from their metadata.
func (r *Runner) LoadSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("load session: %w", session.ErrInvalidSession)
	}
	r.mu.Lock()
	busy := r.inFlight
	r.mu.Unlock()
	if busy {
		return ErrTurnInFlight
	}

	var stored []core.StoredMessage
	if r.store != nil {
		var err error
		if stored, err = listHistory(ctx, r.store, sessionID); err != nil {
			return fmt.Errorf("load session %s: %w", sessionID, err)
		}
	}

	msgs := make([]core.Message, 0, len(stored))
	var artifacts []core.Artifact
	lastAsst := ""
	for _, s := range stored {
		m := s.Message()
		msgs = append(msgs, m)
		if m.Role == core.RoleAssistant {
			lastAsst = m.ID
		}
		for _, a := range persist.ArtifactsFrom(s.Metadata) {
			if a.MessageID == "" {
				a.MessageID = s.ID
			}
			artifacts = append(artifacts, a)
		}
	}

	if r.reconciler != nil {
		r.reconciler.Forget()
		r.reconciler.Restore(sessionID, stored)
	}
	if r.artifacts != nil {
		r.artifacts.ResetArtifacts()
		for _, a := range artifacts {
			r.artifacts.AddArtifact(a)
		}
		if n := len(artifacts); n > 0 {
			r.artifacts.SetCurrentArtifact(artifacts[n-1].ID)
		}
	}
	r.dispatcher.Reset()
	r.panel.Reset("")

	r.update(func() {
		r.sessionID = sessionID
		r.messages = msgs
		r.state = StateIdle
		r.recovery = core.StreamRecovery{}
		r.errMsg = ""
		r.lastAsst = lastAsst
	})
	r.logger.Info("Session loaded", "session_id", sessionID, "messages", len(msgs), "artifacts", len(artifacts))
	return nil
}

func listHistory(ctx context.Context, store core.MessageStore, sessionID string) ([]core.StoredMessage, error) {
	if l, ok := store.(historyLister); ok {
		return l.ListAll(ctx, sessionID)
	}
	var out []core.StoredMessage
	for offset := 0; ; offset += HistoryPageSize {
		page, err := store.ListMessages(ctx, sessionID, HistoryPageSize, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < HistoryPageSize {
			return out, nil
		}
	}
}

// AttachArtifact adds an artifact that arrived after the turn that produced
// it ended. It is linked to the last assistant message and, when that
// message is persisted, written to its metadata.
func (r *Runner) AttachArtifact(ctx context.Context, a core.Artifact) error {
	if a.ID == "" {
		a.ID = core.NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}

	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		return ErrTurnInFlight
	}
	idx := -1
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].ID == r.lastAsst && r.lastAsst != "" {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return ErrNoAssistant
	}
	msg := r.messages[idx].Clone()
	a.MessageID = msg.ID
	list := append(persist.ArtifactsFrom(msg.Metadata), a.Serializable())
	meta := persist.Metadata{Artifacts: list}.Build()
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	msg.Metadata[persist.KeyArtifacts] = meta[persist.KeyArtifacts]
	// Copy on write: earlier snapshots and turn results keep their view.
	msgs := append([]core.Message(nil), r.messages...)
	msgs[idx] = msg
	r.messages = msgs
	localID, sessionID := msg.ID, r.sessionID
	r.mu.Unlock()
	r.notify()

	if r.artifacts != nil {
		r.artifacts.AddArtifact(a)
		r.artifacts.SetCurrentArtifact(a.ID)
		r.artifacts.SetArtifactsVisible(true)
	}
	if r.reconciler == nil {
		return nil
	}
	update := map[string]any{persist.KeyArtifacts: meta[persist.KeyArtifacts]}
	if err := r.reconciler.UpdateMetadata(ctx, sessionID, localID, update); err != nil {
		return fmt.Errorf("attach artifact %s: %w", a.ID, err)
	}
	return nil
}

// NewSession starts an empty conversation with a fresh ID.
func (r *Runner) NewSession() (string, error) {
	r.mu.Lock()
	busy := r.inFlight
	r.mu.Unlock()
	if busy {
		return "", ErrTurnInFlight
	}

	id := core.NewID()
	if r.artifacts != nil {
		r.artifacts.ResetArtifacts()
	}
	r.dispatcher.Reset()
	r.panel.Reset("")
	r.update(func() {
		r.sessionID = id
		r.messages = nil
		r.state = StateIdle
		r.recovery = core.StreamRecovery{}
		r.errMsg = ""
		r.lastAsst = ""
	})
	return id, nil
}
