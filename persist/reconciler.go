// Package persist writes a turn's messages to the persistence backend and
// owns the mapping from local message IDs to durable ones.
package persist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
	"github.com/moonshubh/Agent-Sparrow-sub001/stream"
)

// Options configures a Reconciler.
type Options struct {
	// Timeout bounds a single backend write. Zero means no extra bound.
	Timeout time.Duration
	Logger  logging.Logger
}

// Reconciler persists messages exactly once per local ID. It is safe for
// concurrent use.
type Reconciler struct {
	store   core.MessageStore
	timeout time.Duration
	logger  logging.Logger

	group singleflight.Group

	mu       sync.Mutex
	ids      map[string]string   // local ID -> persisted ID
	inflight map[string]struct{} // local IDs claimed by a write
	last     map[string]string   // session ID -> last persisted ID
}

// New creates a Reconciler writing to store.
func New(store core.MessageStore, optFns ...func(o *Options)) *Reconciler {
	opts := Options{
		Timeout: 30 * time.Second,
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Reconciler{
		store:    store,
		timeout:  opts.Timeout,
		logger:   logging.Component(opts.Logger, "persist"),
		ids:      make(map[string]string),
		inflight: make(map[string]struct{}),
		last:     make(map[string]string),
	}
}

// PersistedID returns the durable ID of a local message.
func (r *Reconciler) PersistedID(localID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.ids[localID]
	return id, ok
}

// LastPersisted returns the ID of the most recent write for a session.
func (r *Reconciler) LastPersisted(sessionID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.last[sessionID]
}

// Restore records messages loaded from the backend as already persisted.
func (r *Reconciler) Restore(sessionID string, msgs []core.StoredMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		r.ids[m.ID] = m.ID
		r.last[sessionID] = m.ID
	}
}

// Forget drops every mapping. Used when switching sessions.
func (r *Reconciler) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.ids)
	clear(r.inflight)
	clear(r.last)
}

// UpdateMetadata patches the metadata of an already persisted message.
func (r *Reconciler) UpdateMetadata(ctx context.Context, sessionID, localID string, meta map[string]any) error {
	id, ok := r.PersistedID(localID)
	if !ok {
		return fmt.Errorf("update metadata of %s: %w", localID, ErrNotPersisted)
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	if err := r.store.UpdateMessage(ctx, sessionID, id, core.UpdateMessageRequest{Metadata: meta}); err != nil {
		return fmt.Errorf("update metadata of %s: %w", id, err)
	}
	return nil
}

// BeginTurn opens the per-turn persistence scope.
func (r *Reconciler) BeginTurn(sessionID, agentType string) *Turn {
	return &Turn{r: r, sessionID: sessionID, agentType: agentType}
}

// write posts msg unless it is already persisted or being persisted. The
// claim is rolled back when the backend rejects the write.
func (r *Reconciler) write(ctx context.Context, sessionID string, msg core.Message, req core.PostMessageRequest) (string, bool) {
	var leader bool
	v, _, _ := r.group.Do(msg.ID, func() (any, error) {
		leader = true
		r.mu.Lock()
		if id, ok := r.ids[msg.ID]; ok {
			r.mu.Unlock()
			return result{id: id}, nil
		}
		if _, ok := r.inflight[msg.ID]; ok {
			r.mu.Unlock()
			return result{}, nil
		}
		r.inflight[msg.ID] = struct{}{}
		r.mu.Unlock()

		wctx, cancel := r.bound(ctx)
		defer cancel()

		start := time.Now()
		resp, err := r.store.PostMessage(wctx, sessionID, req)

		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.inflight, msg.ID)
		if err != nil {
			logging.Persist(r.logger, req.MessageType, time.Since(start), err, "message_id", msg.ID)
			return result{}, nil
		}
		id := resp.ID
		if id == "" {
			id = msg.ID
		}
		r.ids[msg.ID] = id
		r.last[sessionID] = id
		logging.Persist(r.logger, req.MessageType, time.Since(start), nil, "message_id", msg.ID, "persisted_id", id)
		return result{id: id, wrote: true}, nil
	})
	res := v.(result)
	return res.id, leader && res.wrote
}

func (r *Reconciler) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

type result struct {
	id    string
	wrote bool
}

// Turn scopes the writes of one chat turn: one user message written in the
// background and at most one assistant message.
type Turn struct {
	r         *Reconciler
	sessionID string
	agentType string

	wg sync.WaitGroup

	mu        sync.Mutex
	assistant string // local ID claimed by the assistant write
}

// PersistUser writes the user message in the background. Cancellation of
// ctx does not abort the write. Wait joins it.
func (t *Turn) PersistUser(ctx context.Context, msg core.Message, attachments []core.Attachment) {
	if t.r.store == nil || (strings.TrimSpace(msg.Content) == "" && len(attachments) == 0) {
		return
	}
	req := core.PostMessageRequest{
		MessageType: string(core.RoleUser),
		Content:     msg.Content,
		AgentType:   t.agentType,
		Metadata:    Metadata{Attachments: attachments}.Build(),
	}
	ctx = context.WithoutCancel(ctx)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.r.write(ctx, t.sessionID, msg, req)
	}()
}

// Wait blocks until the background user write has finished.
func (t *Turn) Wait() { t.wg.Wait() }

// PersistAssistant writes the turn's final assistant message. It joins the
// user write first so the backend sees them in order. Text that is empty or
// raw JSON is replaced by a placeholder describing meta. It returns the
// durable ID and whether this call performed the write; failures are logged
// and never returned.
func (t *Turn) PersistAssistant(ctx context.Context, msg core.Message, meta Metadata) (string, bool) {
	t.Wait()
	if t.r.store == nil || msg.ID == "" {
		return "", false
	}

	t.mu.Lock()
	if t.assistant != "" && t.assistant != msg.ID {
		t.mu.Unlock()
		return "", false
	}
	t.assistant = msg.ID
	t.mu.Unlock()

	content := strings.TrimSpace(msg.Content)
	if content == "" || stream.LooksLikeRawJSON(content) {
		content = meta.Placeholder()
	}
	if content == "" {
		t.release(msg.ID)
		return "", false
	}

	id, wrote := t.r.write(ctx, t.sessionID, msg, core.PostMessageRequest{
		MessageType: string(core.RoleAssistant),
		Content:     content,
		AgentType:   t.agentType,
		Metadata:    meta.Build(),
	})
	if id == "" {
		t.release(msg.ID)
	}
	return id, wrote
}

func (t *Turn) release(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.assistant == id {
		t.assistant = ""
	}
}
