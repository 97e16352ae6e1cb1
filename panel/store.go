package panel

import (
	"sync"

	"github.com/moonshubh/Agent-Sparrow-sub001/event"
	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
)

// StoreOptions configures a Store.
type StoreOptions struct {
	Logger logging.Logger
}

// Store is the single mutable holder of panel state. Apply serialises
// reductions; readers only ever see cloned snapshots.
type Store struct {
	mu     sync.RWMutex
	state  State
	subs   map[int]func(State)
	nextID int
	logger logging.Logger
}

// NewStore creates a Store holding an empty state.
func NewStore(optFns ...func(o *StoreOptions)) *Store {
	opts := StoreOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{
		state:  NewState(""),
		subs:   map[int]func(State){},
		logger: logging.OrNoOp(opts.Logger),
	}
}

// Apply reduces evs in order and notifies subscribers once when anything
// changed. It returns the resulting snapshot.
func (s *Store) Apply(evs ...event.Event) State {
	s.mu.Lock()
	before := s.state.Version
	for _, ev := range evs {
		s.state = Reduce(s.state, ev)
	}
	changed := s.state.Version != before
	snap := s.state.Clone()
	subs := s.subscribers()
	s.mu.Unlock()

	if changed {
		s.logger.Debug("Panel state updated", "run_id", snap.RunID, "run_status", snap.RunStatus, "events", len(evs))
		for _, fn := range subs {
			fn(snap.Clone())
		}
	}
	return snap
}

// Reset starts a fresh run.
func (s *Store) Reset(runID string) State {
	return s.Apply(RunStarted{RunID: runID})
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function unregisters it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) subscribers() []func(State) {
	out := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}
