package event

import (
	"time"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
)

// Custom event names understood by Normalize.
const (
	NameObjectiveHint         = "objective_hint_update"
	NameThinkingTrace         = "agent_thinking_trace"
	NameToolEvidence          = "tool_evidence_update"
	NameTodosUpdate           = "agent_todos_update"
	NameTimelineUpdate        = "agent_timeline_update"
	NameSubagentSpawn         = "subagent_spawn"
	NameSubagentEnd           = "subagent_end"
	NameSubagentThinkingDelta = "subagent_thinking_delta"
	NameToolCallStart         = "tool_call_start"
	NameToolCallResult        = "tool_call_result"
	NameTodosSnapshot         = "todos_snapshot"
)

// Text budgets applied during normalization.
const (
	MaxTitleLen    = 240
	MaxSummaryLen  = 900
	MaxDetailLen   = 1800
	MaxCards       = 6
	MaxCardTitle   = 160
	MaxCardSnippet = 600
	MaxCardURL     = 512
)

// Event is the closed union of normalized domain events.
type Event interface {
	// Name returns the wire name of the event.
	Name() string
	// At returns the event timestamp.
	At() time.Time
	isEvent()
}

// Meta carries the timestamp shared by every event. Inferred is true when the
// payload carried no parseable timestamp and the clock was used instead.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	Inferred  bool      `json:"-"`
}

// At implements Event.
func (m Meta) At() time.Time { return m.Timestamp }

func (Meta) isEvent() {}

// ObjectiveHintUpdate announces or refines the objective a lane is pursuing.
type ObjectiveHintUpdate struct {
	Meta
	ObjectiveID string             `json:"objectiveId,omitempty"`
	LaneID      string             `json:"laneId,omitempty"`
	ToolCallID  string             `json:"toolCallId,omitempty"`
	Phase       core.Phase         `json:"phase"`
	Kind        core.ObjectiveKind `json:"kind"`
	Status      core.Status        `json:"status"`
	Title       string             `json:"title,omitempty"`
	Summary     string             `json:"summary,omitempty"`
	Detail      string             `json:"detail,omitempty"`
}

// Name implements Event.
func (ObjectiveHintUpdate) Name() string { return NameObjectiveHint }

// ThinkingTrace is one reasoning step emitted by a lane.
type ThinkingTrace struct {
	Meta
	ID         string      `json:"id,omitempty"`
	LaneID     string      `json:"laneId,omitempty"`
	ToolCallID string      `json:"toolCallId,omitempty"`
	Phase      core.Phase  `json:"phase"`
	Status     core.Status `json:"status"`
	Title      string      `json:"title,omitempty"`
	Content    string      `json:"content"`
	Detail     string      `json:"detail,omitempty"`
}

// Name implements Event.
func (ThinkingTrace) Name() string { return NameThinkingTrace }

// ToolEvidenceUpdate attaches structured evidence to a tool call. An empty
// Status leaves the tool objective's status untouched.
type ToolEvidenceUpdate struct {
	Meta
	ToolCallID       string                  `json:"toolCallId"`
	ToolName         string                  `json:"toolName,omitempty"`
	LaneID           string                  `json:"laneId,omitempty"`
	ParentToolCallID string                  `json:"parentToolCallId,omitempty"`
	Status           core.Status             `json:"status"`
	Summary          string                  `json:"summary,omitempty"`
	Detail           string                  `json:"detail,omitempty"`
	Cards            []core.ToolEvidenceCard `json:"cards,omitempty"`
}

// Name implements Event.
func (ToolEvidenceUpdate) Name() string { return NameToolEvidence }

// TodosUpdate replaces the shared todo list.
type TodosUpdate struct {
	Meta
	Todos []core.Todo `json:"todos"`
}

// Name implements Event.
func (TodosUpdate) Name() string { return NameTodosUpdate }

// TodosSnapshot replaces the shared todo list from a state snapshot.
type TodosSnapshot struct {
	Meta
	Todos []core.Todo `json:"todos"`
}

// Name implements Event.
func (TodosSnapshot) Name() string { return NameTodosSnapshot }

// TimelineOperation is one entry of a timeline update. A zero Timestamp
// means the operation inherits the enclosing event's timestamp.
type TimelineOperation struct {
	ID         string             `json:"id"`
	LaneID     string             `json:"laneId,omitempty"`
	ToolCallID string             `json:"toolCallId,omitempty"`
	Kind       core.ObjectiveKind `json:"kind"`
	Phase      core.Phase         `json:"phase"`
	Status     core.Status        `json:"status"`
	Title      string             `json:"title,omitempty"`
	Summary    string             `json:"summary,omitempty"`
	Detail     string             `json:"detail,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// TimelineUpdate carries a batch of timeline operations.
type TimelineUpdate struct {
	Meta
	Operations         []TimelineOperation `json:"operations"`
	CurrentOperationID string              `json:"currentOperationId,omitempty"`
}

// Name implements Event.
func (TimelineUpdate) Name() string { return NameTimelineUpdate }

// SubagentSpawn opens a subagent lane keyed by the spawning tool call.
type SubagentSpawn struct {
	Meta
	ToolCallID   string `json:"toolCallId"`
	SubagentType string `json:"subagentType,omitempty"`
	Task         string `json:"task,omitempty"`
}

// Name implements Event.
func (SubagentSpawn) Name() string { return NameSubagentSpawn }

// SubagentEnd closes a subagent lane.
type SubagentEnd struct {
	Meta
	ToolCallID string      `json:"toolCallId"`
	Status     core.Status `json:"status"`
	Summary    string      `json:"summary,omitempty"`
}

// Name implements Event.
func (SubagentEnd) Name() string { return NameSubagentEnd }

// SubagentThinkingDelta appends streamed reasoning text to a subagent.
type SubagentThinkingDelta struct {
	Meta
	ToolCallID string `json:"toolCallId"`
	Delta      string `json:"delta"`
}

// Name implements Event.
func (SubagentThinkingDelta) Name() string { return NameSubagentThinkingDelta }

// ToolCallStart reports that a tool call began.
type ToolCallStart struct {
	Meta
	ToolCallID       string `json:"toolCallId"`
	ToolName         string `json:"toolName,omitempty"`
	LaneID           string `json:"laneId,omitempty"`
	ParentToolCallID string `json:"parentToolCallId,omitempty"`
	Args             string `json:"args,omitempty"`
}

// Name implements Event.
func (ToolCallStart) Name() string { return NameToolCallStart }

// ToolCallResult reports the outcome of a tool call.
type ToolCallResult struct {
	Meta
	ToolCallID       string                  `json:"toolCallId"`
	ToolName         string                  `json:"toolName,omitempty"`
	LaneID           string                  `json:"laneId,omitempty"`
	ParentToolCallID string                  `json:"parentToolCallId,omitempty"`
	Status           core.Status             `json:"status"`
	Summary          string                  `json:"summary,omitempty"`
	Detail           string                  `json:"detail,omitempty"`
	Cards            []core.ToolEvidenceCard `json:"cards,omitempty"`
}

// Name implements Event.
func (ToolCallResult) Name() string { return NameToolCallResult }

// IsCadence reports whether ev belongs to the high-frequency thought stream
// that is batched rather than applied immediately.
func IsCadence(ev Event) bool {
	switch ev.(type) {
	case ThinkingTrace, SubagentThinkingDelta:
		return true
	}
	return false
}
