package panel

import (
	"time"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/event"
)

// Lifecycle command names. These come from the runner, never the backend.
const (
	NameRunStarted    = "run_started"
	NameRunFinished   = "run_finished"
	NameRunIncomplete = "run_incomplete"
)

// Summaries written by the lifecycle commands.
const (
	NoCompletionSummary = "No completion event received"
	IncompleteSummary   = "Connection was unstable; this step may be incomplete"
)

// IncompleteObjectiveID names the synthetic objective added when a run ends
// incomplete before any objective was reported.
const IncompleteObjectiveID = "run:incomplete"

// RunStarted resets the panel for a new run.
type RunStarted struct {
	event.Meta
	RunID string
}

// Name implements event.Event.
func (RunStarted) Name() string { return NameRunStarted }

// RunFinished closes the run: objectives still in flight become unknown.
type RunFinished struct{ event.Meta }

// Name implements event.Event.
func (RunFinished) Name() string { return NameRunFinished }

// RunIncomplete marks a run whose stream could not be completed. Every
// objective that did not fail is forced to unknown.
type RunIncomplete struct{ event.Meta }

// Name implements event.Event.
func (RunIncomplete) Name() string { return NameRunIncomplete }

// NewRunStarted builds a RunStarted command stamped at now.
func NewRunStarted(runID string, now time.Time) RunStarted {
	return RunStarted{Meta: event.Meta{Timestamp: now}, RunID: runID}
}

// NewRunFinished builds a RunFinished command stamped at now.
func NewRunFinished(now time.Time) RunFinished {
	return RunFinished{Meta: event.Meta{Timestamp: now}}
}

// NewRunIncomplete builds a RunIncomplete command stamped at now.
func NewRunIncomplete(now time.Time) RunIncomplete {
	return RunIncomplete{Meta: event.Meta{Timestamp: now}}
}

func (t *txn) finish(at time.Time) {
	for _, o := range t.s.Objectives {
		if o.Status.IsTerminal() {
			continue
		}
		t.force(o, NoCompletionSummary, at)
	}
	t.closeSubagents(at)
}

func (t *txn) incomplete(at time.Time) {
	if len(t.s.Objectives) == 0 {
		t.upsert(ObjectivePatch{
			ID:      IncompleteObjectiveID,
			LaneID:  core.PrimaryLaneID,
			Phase:   core.PhaseSynthesize,
			Kind:    core.KindThought,
			Status:  core.StatusUnknown,
			Title:   "Run incomplete",
			Summary: IncompleteSummary,
			At:      at,
		})
		return
	}
	for _, o := range t.s.Objectives {
		if o.Status == core.StatusError || o.Status == core.StatusUnknown {
			continue
		}
		summary := o.Summary
		if !o.Status.IsTerminal() {
			summary = IncompleteSummary
		}
		t.force(o, summary, at)
	}
	t.closeSubagents(at)
}

// force bypasses the staleness rule; only lifecycle commands use it.
func (t *txn) force(o core.Objective, summary string, at time.Time) {
	o = o.Clone()
	o.Status = core.StatusUnknown
	o.Summary = summary
	if at.After(o.UpdatedAt) {
		o.UpdatedAt = at
	}
	end := o.UpdatedAt
	o.EndedAt = &end
	t.putObjective(o)
	if t.s.ActiveObjectiveID == o.ID {
		t.s.ActiveObjectiveID, t.s.ActiveLaneID = "", ""
	}
}

func (t *txn) closeSubagents(at time.Time) {
	for _, r := range t.s.Subagents {
		if r.Status.IsTerminal() {
			continue
		}
		r.Status = core.StatusUnknown
		end := at
		r.EndedAt = &end
		t.putSubagent(r)
	}
}
