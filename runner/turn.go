package runner

import (
	"context"
	"encoding/json"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/event"
	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
	"github.com/moonshubh/Agent-Sparrow-sub001/panel"
	"github.com/moonshubh/Agent-Sparrow-sub001/persist"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol"
	"github.com/moonshubh/Agent-Sparrow-sub001/retry"
	"github.com/moonshubh/Agent-Sparrow-sub001/stream"
)

// Input is one user message.
type Input struct {
	Content     string
	Attachments []core.Attachment
	// AgentType overrides inference when set.
	AgentType string
	// ForwardedProps are passed to the backend with every attempt.
	ForwardedProps map[string]any
}

func isEmpty(in Input) bool {
	return strings.TrimSpace(in.Content) == "" && len(in.Attachments) == 0
}

// TurnResult is the outcome of one SendMessage call. Run failures are
// reported here, not as the returned error.
type TurnResult struct {
	TurnID    string              `json:"turn_id"`
	RunID     string              `json:"run_id"`
	AgentType string              `json:"agent_type"`
	State     State               `json:"state"`
	Error     string              `json:"error,omitempty"`
	Err       error               `json:"-"`
	Recovery  core.StreamRecovery `json:"recovery"`
	Messages  []core.Message      `json:"messages"`
	Panel     panel.State         `json:"panel"`
	// Assistant is the final assistant message of the turn, if any.
	Assistant   *core.Message     `json:"assistant,omitempty"`
	PersistedID string            `json:"persisted_id,omitempty"`
	Artifacts   []core.Artifact   `json:"artifacts,omitempty"`
	Notes       map[string]string `json:"notes,omitempty"`
}

// SendMessage runs one chat turn to completion: it appends the user message,
// streams the run, retries transient failures, reconciles the transcript and
// persists the result. It returns ErrTurnInFlight while another turn runs.
// Cancelling ctx or calling Abort ends the turn as aborted.
func (r *Runner) SendMessage(ctx context.Context, in Input) (*TurnResult, error) {
	if isEmpty(in) {
		return nil, ErrEmptyMessage
	}

	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	sessionID := r.sessionID
	agentType := r.resolveAgentType(in)
	props, err := forwardedProps(in.ForwardedProps, sessionID, agentType)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.inFlight, r.cancel, r.turnDone = true, cancel, done
	history := cloneMessages(r.messages)
	r.state = StateSending
	r.recovery = core.StreamRecovery{}
	r.errMsg = ""
	r.mu.Unlock()

	defer func() {
		cancel()
		r.update(func() {
			r.inFlight = false
			r.cancel = nil
			r.turnDone = nil
		})
		close(done)
	}()

	user := core.NewUserMessage(in.Content)
	user.CreatedAt = r.now()
	if len(in.Attachments) > 0 {
		user.Metadata = persist.Metadata{Attachments: in.Attachments}.Build()
	}

	runID := core.NewID()
	t := newTurn(r, runID, history)
	t.transcript.Append(user)
	r.update(func() { r.messages = t.transcript.Messages() })

	var pt *persist.Turn
	if r.reconciler != nil {
		pt = r.reconciler.BeginTurn(sessionID, agentType)
		pt.PersistUser(ctx, user, in.Attachments)
	}

	r.dispatcher.Reset()
	r.panel.Apply(panel.NewRunStarted(runID, r.now()))

	input := protocol.RunInput{
		ThreadID:       sessionID,
		RunID:          runID,
		Messages:       append(stream.SanitizeHistory(history), user.Clone()),
		ForwardedProps: props,
	}
	log := r.runLogger(runID)
	log.Info("Turn started", "agent_type", agentType, "history", len(history))

	final, runErr := r.attempt(runCtx, t, input, log)

	var errMsg string
	exhausted := false
	switch {
	case final == StateDone:
		r.update(func() { r.state = StateReconciling })
		t.reconcile()
		r.panel.Apply(panel.NewRunFinished(r.now()))
	case final == StateError && retry.Classify(runErr) == retry.Transient:
		exhausted = true
		errMsg = retry.ExhaustedMessage
		r.panel.Apply(panel.NewRunIncomplete(r.now()))
	case final == StateError:
		errMsg = retry.UserMessage(runErr)
		r.panel.Apply(panel.NewRunFinished(r.now()))
	default:
		r.panel.Apply(panel.NewRunFinished(r.now()))
	}
	r.dispatcher.Flush()

	assistant, hasAssistant, meta := t.finalize()
	var persistedID string
	if pt != nil {
		if hasAssistant {
			persistedID, _ = pt.PersistAssistant(context.WithoutCancel(ctx), assistant, meta)
		}
		pt.Wait()
	}

	msgs := t.transcript.Messages()
	snap := r.panel.Snapshot()
	var recovery core.StreamRecovery
	r.update(func() {
		r.messages = msgs
		r.state = final
		r.errMsg = errMsg
		r.recovery.IsRetrying = false
		if exhausted {
			r.recovery.Exhausted = true
			r.recovery.Incomplete = true
		}
		if hasAssistant {
			r.lastAsst = assistant.ID
		}
		recovery = r.recovery
	})
	log.Info("Turn finished", "state", string(final), "attempts", recovery.AttemptsUsed, "persisted_id", persistedID)

	res := &TurnResult{
		TurnID:      t.id,
		RunID:       runID,
		AgentType:   agentType,
		State:       final,
		Error:       errMsg,
		Err:         runErr,
		Recovery:    recovery,
		Messages:    cloneMessages(msgs),
		Panel:       snap,
		PersistedID: persistedID,
		Artifacts:   meta.Artifacts,
		Notes:       meta.Notes,
	}
	if hasAssistant {
		a := assistant.Clone()
		res.Assistant = &a
	}
	return res, nil
}

// attempt drives the retry loop and returns the terminal state with the
// error that caused it.
func (r *Runner) attempt(ctx context.Context, t *turn, input protocol.RunInput, log logging.Logger) (State, error) {
	budget := retry.NewBudget(r.policy.MaxAttempts)
	for budget.Begin() == nil {
		n := budget.Used()
		t.beginAttempt(n)
		r.update(func() {
			r.state = StateSending
			r.recovery.AttemptsUsed = n
			r.recovery.IsRetrying = n > 1
		})

		in := input
		in.ForwardedProps = maps.Clone(input.ForwardedProps)
		start := time.Now()
		err := r.agent.Run(ctx, in, t)
		if failed := t.failure(); failed != nil {
			err = failed
		}
		if ctx.Err() != nil {
			err = retry.ErrAborted
		}
		r.dispatcher.Flush()
		logging.RunAttempt(log, n, time.Since(start), err)

		if err == nil {
			return StateDone, nil
		}
		switch retry.Classify(err) {
		case retry.Abort:
			return StateAborted, err
		case retry.Transient:
			if budget.Exhausted() {
				log.Warn("Retry budget exhausted", "attempts", n, "error", err)
				return StateError, err
			}
			delay := r.policy.Delay(n)
			log.Warn("Transient run failure; retrying", "attempt", n, "delay", delay, "error", err)
			r.update(func() { r.state = StateRetryPending })
			if err := r.sleep(ctx, delay); err != nil {
				return StateAborted, retry.ErrAborted
			}
		default:
			log.Error("Run failed", "attempt", n, "class", retry.Classify(err).String(), "error", err)
			return StateError, err
		}
	}
	return StateError, retry.ErrAborted
}

func (r *Runner) resolveAgentType(in Input) string {
	if in.AgentType != "" {
		return in.AgentType
	}
	if t := r.heuristics.InferAgentType(in.Content, in.Attachments); t != "" {
		return t
	}
	return r.agentType
}

// turn is the protocol.Handler of one SendMessage call. It owns the turn's
// transcript and the pending artifact and notes buffers.
type turn struct {
	r       *Runner
	id      string
	runID   string
	history map[string]struct{}
	live    atomic.Bool

	mu         sync.Mutex
	transcript *stream.Transcript
	incoming   []core.Message
	failed     error
	artifacts  []core.Artifact
	notes      map[string]string
}

var _ protocol.Handler = (*turn)(nil)

func newTurn(r *Runner, runID string, history []core.Message) *turn {
	ids := make(map[string]struct{}, len(history))
	for _, m := range history {
		ids[m.ID] = struct{}{}
	}
	return &turn{
		r:          r,
		id:         core.NewID(),
		runID:      runID,
		history:    ids,
		transcript: stream.NewTranscript(history),
		notes:      map[string]string{},
	}
}

func (t *turn) beginAttempt(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n > 1 {
		t.transcript.BeginRetry()
	}
	t.incoming = nil
	t.failed = nil
	t.live.Store(false)
}

func (t *turn) failure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// streaming moves the runner to the streaming state on the first callback of
// an attempt.
func (t *turn) streaming() {
	if t.live.CompareAndSwap(false, true) {
		t.r.update(func() {
			if t.r.state == StateSending {
				t.r.state = StateStreaming
			}
		})
	}
}

// OnTextMessageContent implements protocol.Handler.
func (t *turn) OnTextMessageContent(messageID, delta string) {
	t.streaming()

	t.mu.Lock()
	changed := t.transcript.ApplyDelta(messageID, delta)
	var msgs []core.Message
	if changed {
		msgs = t.transcript.Messages()
	}
	t.mu.Unlock()

	if changed {
		t.r.update(func() { t.r.messages = msgs })
	}
}

// OnMessagesChanged implements protocol.Handler.
func (t *turn) OnMessagesChanged(msgs []core.Message) {
	t.streaming()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.incoming = cloneMessages(msgs)
}

// OnCustomEvent implements protocol.Handler.
func (t *turn) OnCustomEvent(ctx context.Context, name string, value json.RawMessage) (any, error) {
	t.streaming()

	switch name {
	case EventImageArtifact:
		t.addArtifact(core.ArtifactImage, value)
	case EventArticleArtifact:
		t.addArtifact(core.ArtifactArticle, value)
	case EventLogAnalysisNotes:
		t.addNotes(value)
	case EventInterrupt, EventHumanInputRequired:
		return t.r.awaitInterrupt(ctx, name, value)
	default:
		t.dispatch(name, value)
	}
	return nil, nil
}

// OnStateChanged implements protocol.Handler. Only the todo list is read.
func (t *turn) OnStateChanged(state map[string]any) {
	t.streaming()

	if todos, ok := state["todos"]; ok {
		t.dispatch(event.NameTodosSnapshot, map[string]any{"todos": todos})
	}
}

// OnToolCallStart implements protocol.Handler.
func (t *turn) OnToolCallStart(call protocol.ToolCall) {
	t.streaming()
	t.dispatch(event.NameToolCallStart, call)
}

// OnToolCallResult implements protocol.Handler.
func (t *turn) OnToolCallResult(res protocol.ToolResult) {
	t.streaming()
	t.dispatch(event.NameToolCallResult, res)
}

// OnRunFailed implements protocol.Handler.
func (t *turn) OnRunFailed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = err
}

func (t *turn) dispatch(name string, value any) {
	ev, ok := t.r.normalizer.Normalize(name, value)
	if !ok {
		t.r.logger.Debug("Ignoring custom event", "event", name, "run_id", t.runID)
		return
	}
	t.r.dispatcher.Dispatch(ev)
}

func (t *turn) addArtifact(kind core.ArtifactType, value json.RawMessage) {
	a, ok := parseArtifact(kind, value, t.r.now())
	if !ok {
		t.r.logger.Warn("Dropping malformed artifact event", "type", string(kind), "run_id", t.runID)
		return
	}

	t.mu.Lock()
	if m, ok := t.transcript.Assistant(); ok && !t.fromHistory(m.ID) {
		a.MessageID = m.ID
	}
	replaced := false
	for i := range t.artifacts {
		if t.artifacts[i].ID == a.ID {
			t.artifacts[i] = a.Serializable()
			replaced = true
		}
	}
	if !replaced {
		t.artifacts = append(t.artifacts, a.Serializable())
	}
	t.mu.Unlock()

	if store := t.r.artifacts; store != nil {
		store.AddArtifact(a)
		store.SetCurrentArtifact(a.ID)
		store.SetArtifactsVisible(true)
	}
}

func (t *turn) addNotes(value json.RawMessage) {
	notes := parseNotes(value)
	if len(notes) == 0 {
		t.r.logger.Warn("Dropping empty analysis notes", "run_id", t.runID)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	maps.Copy(t.notes, notes)
}

func (t *turn) fromHistory(id string) bool {
	_, ok := t.history[id]
	return ok
}

// reconcile merges the backend's final message list into the transcript.
func (t *turn) reconcile() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.incoming) == 0 {
		return
	}
	t.transcript.Replace(stream.ReconcileMessages(t.transcript.Messages(), t.incoming))
}

// finalize attaches the turn's artifacts and notes to the assistant message,
// creating a placeholder one when the run produced no text. It returns the
// assistant message to persist.
func (t *turn) finalize() (core.Message, bool, persist.Metadata) {
	t.mu.Lock()
	defer t.mu.Unlock()

	meta := persist.Metadata{Artifacts: append([]core.Artifact(nil), t.artifacts...)}
	if len(t.notes) > 0 {
		meta.Notes = maps.Clone(t.notes)
	}

	m, ok := t.transcript.Assistant()
	if ok && t.fromHistory(m.ID) {
		ok = false
	}
	if !ok {
		if meta.Empty() {
			return core.Message{}, false, meta
		}
		m = core.NewAssistantMessage("", meta.Placeholder())
		m.CreatedAt = t.r.now()
		t.transcript.Replace(append(t.transcript.Messages(), m))
	}
	for i := range meta.Artifacts {
		meta.Artifacts[i].MessageID = m.ID
	}
	if built := meta.Build(); built != nil {
		t.transcript.SetAssistantMetadata(built)
	}
	m, _ = t.transcript.Assistant()
	return m, true, meta
}
