package panel

import (
	"sort"
	"time"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
)

// State is the panel model of a single run.
type State struct {
	RunID             string                      `json:"run_id,omitempty"`
	RunStatus         core.Status                 `json:"run_status"`
	Lanes             map[string]core.Lane        `json:"lanes"`
	LaneOrder         []string                    `json:"lane_order"`
	Objectives        map[string]core.Objective   `json:"objectives"`
	Todos             []core.Todo                 `json:"todos"`
	TodosUpdatedAt    time.Time                   `json:"todos_updated_at"`
	ActiveObjectiveID string                      `json:"active_objective_id,omitempty"`
	ActiveLaneID      string                      `json:"active_lane_id,omitempty"`
	Subagents         map[string]core.SubagentRun `json:"subagents"`
	// Version increases every time Reduce changes the state.
	Version uint64 `json:"version"`
}

// NewState returns an empty state for runID. With no lanes the run is pending.
func NewState(runID string) State {
	return State{
		RunID:      runID,
		RunStatus:  core.StatusPending,
		Lanes:      map[string]core.Lane{},
		Objectives: map[string]core.Objective{},
		Subagents:  map[string]core.SubagentRun{},
	}
}

// Clone returns a deep copy sharing no mutable memory with s.
func (s State) Clone() State {
	c := s
	c.Lanes = make(map[string]core.Lane, len(s.Lanes))
	for k, v := range s.Lanes {
		c.Lanes[k] = v.Clone()
	}
	c.LaneOrder = append([]string(nil), s.LaneOrder...)
	c.Objectives = make(map[string]core.Objective, len(s.Objectives))
	for k, v := range s.Objectives {
		c.Objectives[k] = v.Clone()
	}
	c.Todos = append([]core.Todo(nil), s.Todos...)
	c.Subagents = make(map[string]core.SubagentRun, len(s.Subagents))
	for k, v := range s.Subagents {
		if v.EndedAt != nil {
			t := *v.EndedAt
			v.EndedAt = &t
		}
		c.Subagents[k] = v
	}
	return c
}

// Objective returns the objective with the given id.
func (s State) Objective(id string) (core.Objective, bool) {
	o, ok := s.Objectives[id]
	return o, ok
}

// LaneObjectives returns a lane's objectives in insertion order.
func (s State) LaneObjectives(laneID string) []core.Objective {
	lane, ok := s.Lanes[laneID]
	if !ok {
		return nil
	}
	out := make([]core.Objective, 0, len(lane.ObjectiveIDs))
	for _, id := range lane.ObjectiveIDs {
		if o, ok := s.Objectives[id]; ok {
			out = append(out, o)
		}
	}
	return out
}

// ActiveObjective returns the objective currently marked active.
func (s State) ActiveObjective() (core.Objective, bool) {
	if s.ActiveObjectiveID == "" {
		return core.Objective{}, false
	}
	return s.Objective(s.ActiveObjectiveID)
}

// UnresolvedObjectives returns every running objective, most recently
// updated first.
func (s State) UnresolvedObjectives() []core.Objective {
	var out []core.Objective
	for _, o := range s.Objectives {
		if o.Status == core.StatusRunning {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// ObjectivePatch is the common shape every event mapper projects into before
// the single upsert. An empty Status marks an annotation that keeps the
// current status; other empty fields keep their current values.
type ObjectivePatch struct {
	ID         string
	LaneID     string
	Phase      core.Phase
	Kind       core.ObjectiveKind
	Status     core.Status
	Title      string
	Summary    string
	Detail     string
	ToolCallID string
	Cards      []core.ToolEvidenceCard
	At         time.Time
}
