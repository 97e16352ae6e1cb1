package core

import "time"

// Phase groups objectives by the stage of work they belong to.
type Phase string

const (
	PhasePlan       Phase = "plan"
	PhaseGather     Phase = "gather"
	PhaseExecute    Phase = "execute"
	PhaseSynthesize Phase = "synthesize"
)

// ObjectiveKind is the nature of the work an objective represents.
type ObjectiveKind string

const (
	KindThought ObjectiveKind = "thought"
	KindTool    ObjectiveKind = "tool"
	KindTodo    ObjectiveKind = "todo"
	KindError   ObjectiveKind = "error"
)

// LaneKind distinguishes the primary lane from subagent lanes.
type LaneKind string

const (
	LanePrimary  LaneKind = "primary"
	LaneSubagent LaneKind = "subagent"
)

// PrimaryLaneID is the identifier of the single primary lane of a run.
const PrimaryLaneID = "primary"

// SubagentLanePrefix prefixes every subagent lane identifier.
const SubagentLanePrefix = "subagent:"

// ToolEvidenceCard is a bounded excerpt of a tool's output.
type ToolEvidenceCard struct {
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	URL     string `json:"url,omitempty"`
	Status  Status `json:"status,omitempty"`
}

// Objective is the atomic unit of visible progress inside a lane.
type Objective struct {
	ID            string             `json:"id"`
	LaneID        string             `json:"lane_id"`
	Phase         Phase              `json:"phase"`
	Kind          ObjectiveKind      `json:"kind"`
	Status        Status             `json:"status"`
	Title         string             `json:"title,omitempty"`
	Summary       string             `json:"summary,omitempty"`
	Detail        string             `json:"detail,omitempty"`
	ToolCallID    string             `json:"tool_call_id,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	EndedAt       *time.Time         `json:"ended_at,omitempty"`
	EvidenceCards []ToolEvidenceCard `json:"evidence_cards,omitempty"`
}

// Clone returns a copy that shares no mutable memory with o.
func (o Objective) Clone() Objective {
	c := o
	if o.EndedAt != nil {
		t := *o.EndedAt
		c.EndedAt = &t
	}
	if o.EvidenceCards != nil {
		c.EvidenceCards = append([]ToolEvidenceCard(nil), o.EvidenceCards...)
	}
	return c
}

// Lane is an execution track: the primary run or one spawned subagent.
type Lane struct {
	ID           string   `json:"id"`
	Kind         LaneKind `json:"kind"`
	Label        string   `json:"label,omitempty"`
	ObjectiveIDs []string `json:"objective_ids"`
	Status       Status   `json:"status"`
}

// Clone returns a copy of the lane with its own objective slice.
func (l Lane) Clone() Lane {
	c := l
	c.ObjectiveIDs = append([]string(nil), l.ObjectiveIDs...)
	return c
}

// TodoStatus is the status vocabulary of the shared todo list.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoDone       TodoStatus = "done"
)

// Todo is one entry of the agent's shared todo list.
type Todo struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Status TodoStatus `json:"status"`
}

// ObjectiveStatus maps a todo status onto the objective vocabulary.
func (s TodoStatus) ObjectiveStatus() Status {
	switch s {
	case TodoInProgress:
		return StatusRunning
	case TodoDone:
		return StatusDone
	default:
		return StatusPending
	}
}

// SubagentRun is per-subagent-lane bookkeeping.
type SubagentRun struct {
	ToolCallID   string     `json:"tool_call_id"`
	SubagentType string     `json:"subagent_type,omitempty"`
	Status       Status     `json:"status"`
	Task         string     `json:"task,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Thinking     string     `json:"thinking,omitempty"`
}
