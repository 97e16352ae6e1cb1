package runner

import (
	"context"
	"time"

	"github.com/moonshubh/Agent-Sparrow-sub001/artifact"
	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/dispatch"
	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
	"github.com/moonshubh/Agent-Sparrow-sub001/retry"
	"github.com/moonshubh/Agent-Sparrow-sub001/session"
	"github.com/moonshubh/Agent-Sparrow-sub001/steering"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// SessionID identifies the conversation at the persistence backend. A
	// fresh one is generated when empty.
	SessionID string
	// AgentType is sent when no log-analysis intent is inferred.
	AgentType string

	// Store is the persistence API.
	Store core.MessageStore
	// Artifacts receives image and article artifacts.
	Artifacts core.ArtifactStore

	// Retry is the backoff schedule for transient failures.
	Retry retry.Policy
	// Sleep waits between attempts. Tests replace it to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error

	// BatchWindow is the cadence batching window of the dispatcher.
	BatchWindow time.Duration
	// DedupCapacity bounds the dispatcher's seen-key set.
	DedupCapacity int

	// Steerer decides what a mid-run message means.
	Steerer *steering.Steerer

	// LogAnalysis tunes log-analysis intent inference.
	LogAnalysis LogHeuristics

	// PersistTimeout bounds a single persistence write.
	PersistTimeout time.Duration

	// Now is the clock used for lifecycle commands.
	Now func() time.Time

	Logger logging.Logger
}

func defaultOptions() Options {
	return Options{
		AgentType:      "primary",
		Store:          session.NewInMemoryStore(),
		Artifacts:      artifact.NewInMemoryStore(),
		Retry:          retry.DefaultPolicy(),
		Sleep:          retry.Sleep,
		BatchWindow:    dispatch.DefaultWindow,
		DedupCapacity:  dispatch.DefaultCapacity,
		Steerer:        steering.New(),
		LogAnalysis:    DefaultLogHeuristics(),
		PersistTimeout: 30 * time.Second,
		Now:            func() time.Time { return time.Now().UTC() },
		Logger:         logging.NoOpLogger{},
	}
}
