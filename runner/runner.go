package runner

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/dispatch"
	"github.com/moonshubh/Agent-Sparrow-sub001/event"
	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
	"github.com/moonshubh/Agent-Sparrow-sub001/panel"
	"github.com/moonshubh/Agent-Sparrow-sub001/persist"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol"
	"github.com/moonshubh/Agent-Sparrow-sub001/retry"
	"github.com/moonshubh/Agent-Sparrow-sub001/steering"
)

// State is the lifecycle state of the runner.
type State string

const (
	StateIdle         State = "idle"
	StateSending      State = "sending"
	StateStreaming    State = "streaming"
	StateRetryPending State = "retry_pending"
	StateReconciling  State = "reconciling"
	StateDone         State = "done"
	StateAborted      State = "aborted"
	StateError        State = "error"
)

// Terminal reports whether s ends a turn.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateAborted, StateError:
		return true
	}
	return false
}

// PendingSteering is an ambiguous mid-run message waiting for the user to
// say whether it continues the objective.
type PendingSteering struct {
	Message   string         `json:"message"`
	Objective core.Objective `json:"objective"`
	Score     float64        `json:"score"`
	Deadline  time.Time      `json:"deadline"`
}

// PendingInterrupt is a backend request for human input.
type PendingInterrupt struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// Snapshot is a read-only view of the runner.
type Snapshot struct {
	SessionID string              `json:"session_id"`
	State     State               `json:"state"`
	Messages  []core.Message      `json:"messages"`
	Panel     panel.State         `json:"panel"`
	Recovery  core.StreamRecovery `json:"recovery"`
	Error     string              `json:"error,omitempty"`
	Steering  *PendingSteering    `json:"steering_pending,omitempty"`
	Interrupt *PendingInterrupt   `json:"interrupt,omitempty"`
}

// SteeringPending reports whether an ambiguous message awaits a decision.
func (s Snapshot) SteeringPending() bool { return s.Steering != nil }

// Runner coordinates chat turns against one agent. Public methods are safe
// for concurrent use.
type Runner struct {
	agent protocol.Agent

	agentType   string
	store       core.MessageStore
	artifacts   core.ArtifactStore
	policy      retry.Policy
	sleep       func(ctx context.Context, d time.Duration) error
	steerer     *steering.Steerer
	heuristics  LogHeuristics
	now         func() time.Time
	logger      logging.Logger
	panel       *panel.Store
	dispatcher  *dispatch.Dispatcher
	normalizer  *event.Normalizer
	reconciler  *persist.Reconciler
	unsubscribe func()

	mu        sync.Mutex
	sessionID string
	state     State
	messages  []core.Message
	recovery  core.StreamRecovery
	errMsg    string
	inFlight  bool
	cancel    context.CancelFunc
	turnDone  chan struct{}
	steer     *steerWait
	interrupt *interruptWait
	lastAsst  string // local ID of the last persisted assistant message
	subs      map[int]func(Snapshot)
	nextSub   int
}

// New constructs a Runner with optional overrides.
func New(agent protocol.Agent, optFns ...func(o *Options)) *Runner {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.SessionID == "" {
		opts.SessionID = core.NewID()
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	if opts.Steerer == nil {
		opts.Steerer = steering.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	logger := logging.OrNoOp(opts.Logger)

	store := panel.NewStore(func(o *panel.StoreOptions) { o.Logger = logger })
	r := &Runner{
		agent:      agent,
		agentType:  opts.AgentType,
		store:      opts.Store,
		artifacts:  opts.Artifacts,
		policy:     opts.Retry,
		sleep:      opts.Sleep,
		steerer:    opts.Steerer,
		heuristics: opts.LogAnalysis,
		now:        opts.Now,
		logger:     logger,
		panel:      store,
		dispatcher: dispatch.New(store, func(o *dispatch.Options) {
			o.Window = opts.BatchWindow
			o.Capacity = opts.DedupCapacity
			o.Logger = logger
		}),
		normalizer: event.NewNormalizer(func(o *event.Options) { o.Now = opts.Now }),
		sessionID:  opts.SessionID,
		state:      StateIdle,
		subs:       map[int]func(Snapshot){},
	}
	if opts.Store != nil {
		r.reconciler = persist.New(opts.Store, func(o *persist.Options) {
			o.Timeout = opts.PersistTimeout
			o.Logger = logger
		})
	}
	r.unsubscribe = store.Subscribe(func(panel.State) { r.notify() })
	return r
}

// SessionID returns the current conversation ID.
func (r *Runner) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sessionID
}

// Panel returns the panel store the runner feeds.
func (r *Runner) Panel() *panel.Store { return r.panel }

// PersistedID maps a local message ID to its durable ID.
func (r *Runner) PersistedID(localID string) (string, bool) {
	if r.reconciler == nil {
		return "", false
	}
	return r.reconciler.PersistedID(localID)
}

// Snapshot returns a read-only copy of the runner state.
func (r *Runner) Snapshot() Snapshot {
	p := r.panel.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		SessionID: r.sessionID,
		State:     r.state,
		Messages:  cloneMessages(r.messages),
		Panel:     p,
		Recovery:  r.recovery,
		Error:     r.errMsg,
	}
	if r.steer != nil {
		ps := r.steer.pending
		snap.Steering = &ps
	}
	if r.interrupt != nil {
		pi := r.interrupt.pending
		pi.Value = append(json.RawMessage(nil), pi.Value...)
		snap.Interrupt = &pi
	}
	return snap
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function unregisters it. fn must not block.
func (r *Runner) Subscribe(fn func(Snapshot)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// Abort cancels the turn in flight. It is a no-op when idle.
func (r *Runner) Abort() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Close aborts any turn and detaches from the panel store.
func (r *Runner) Close() {
	r.Abort()
	r.waitIdle(context.Background())
	r.dispatcher.Close()
	r.unsubscribe()
}

// waitIdle blocks until no turn is in flight or ctx is done.
func (r *Runner) waitIdle(ctx context.Context) error {
	r.mu.Lock()
	done := r.turnDone
	inFlight := r.inFlight
	r.mu.Unlock()

	if !inFlight || done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// update mutates the runner under its lock and notifies subscribers.
func (r *Runner) update(fn func()) {
	r.mu.Lock()
	fn()
	r.mu.Unlock()
	r.notify()
}

func (r *Runner) notify() {
	r.mu.Lock()
	subs := make([]func(Snapshot), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	snap := r.Snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}

// runLogger scopes the logger to the session and run when it supports it.
func (r *Runner) runLogger(runID string) logging.Logger {
	if sl, ok := r.logger.(*logging.StructuredLogger); ok {
		return sl.WithComponent("runner").WithSession(r.SessionID(), runID)
	}
	return r.logger
}

func cloneMessages(msgs []core.Message) []core.Message {
	out := make([]core.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
