package panel

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/event"
	"github.com/moonshubh/Agent-Sparrow-sub001/internal/util"
)

// MaxSubagentThinking bounds the stored subagent reasoning transcript.
const MaxSubagentThinking = 4000

// TruncatedMarker prefixes a subagent transcript whose head was dropped.
const TruncatedMarker = "…[truncated]\n"

// NormalizeLaneID maps an explicit lane id onto the lane key space.
func NormalizeLaneID(id string) string {
	id = strings.TrimSpace(id)
	switch {
	case id == "" || id == core.PrimaryLaneID:
		return core.PrimaryLaneID
	case strings.HasPrefix(id, core.SubagentLanePrefix):
		return id
	default:
		return core.SubagentLanePrefix + id
	}
}

// SubagentLaneID returns the lane key for a subagent spawned by toolCallID.
func SubagentLaneID(toolCallID string) string {
	return core.SubagentLanePrefix + toolCallID
}

// resolveLane applies the generic rule: explicit lane, else the tool call
// implies a subagent, else primary.
func resolveLane(laneID, toolCallID string) string {
	if laneID != "" {
		return NormalizeLaneID(laneID)
	}
	if toolCallID != "" {
		return SubagentLaneID(toolCallID)
	}
	return core.PrimaryLaneID
}

// toolLane places a tool objective: explicit lane, else the parent subagent,
// else primary. The call's own id names the objective, not the lane.
func toolLane(laneID, parentToolCallID string) string {
	if laneID != "" {
		return NormalizeLaneID(laneID)
	}
	if parentToolCallID != "" {
		return SubagentLaneID(parentToolCallID)
	}
	return core.PrimaryLaneID
}

// ToolObjectiveID is the objective id of a tool call. An empty call id
// yields an empty objective id, which upsert ignores.
func ToolObjectiveID(toolCallID string) string {
	if toolCallID == "" {
		return ""
	}
	return "tool:" + toolCallID
}

// TodoObjectiveID is the objective id of a todo item.
func TodoObjectiveID(todoID string) string { return "todo:" + todoID }

func hintPatch(e event.ObjectiveHintUpdate) ObjectivePatch {
	lane := resolveLane(e.LaneID, e.ToolCallID)
	id := e.ObjectiveID
	if id == "" {
		id = "objective:" + lane
	}
	return ObjectivePatch{
		ID:         id,
		LaneID:     lane,
		Phase:      e.Phase,
		Kind:       e.Kind,
		Status:     e.Status,
		Title:      e.Title,
		Summary:    e.Summary,
		Detail:     e.Detail,
		ToolCallID: e.ToolCallID,
		At:         e.At(),
	}
}

func thoughtPatch(e event.ThinkingTrace) ObjectivePatch {
	lane := resolveLane(e.LaneID, e.ToolCallID)
	id := e.ID
	if id == "" {
		id = "thought:" + lane
	}
	title := e.Title
	if title == "" {
		title = util.Clamp(firstLine(e.Content), 80)
	}
	return ObjectivePatch{
		ID:      id,
		LaneID:  lane,
		Phase:   e.Phase,
		Kind:    core.KindThought,
		Status:  e.Status,
		Title:   title,
		Summary: e.Content,
		Detail:  e.Detail,
		At:      e.At(),
	}
}

func evidencePatch(e event.ToolEvidenceUpdate) ObjectivePatch {
	return ObjectivePatch{
		ID:         ToolObjectiveID(e.ToolCallID),
		LaneID:     toolLane(e.LaneID, e.ParentToolCallID),
		Kind:       core.KindTool,
		Status:     e.Status,
		Title:      e.ToolName,
		Summary:    e.Summary,
		Detail:     e.Detail,
		ToolCallID: e.ToolCallID,
		Cards:      e.Cards,
		At:         e.At(),
	}
}

func toolStartPatch(e event.ToolCallStart) ObjectivePatch {
	title := e.ToolName
	if title == "" {
		title = "Tool call"
	}
	return ObjectivePatch{
		ID:         ToolObjectiveID(e.ToolCallID),
		LaneID:     toolLane(e.LaneID, e.ParentToolCallID),
		Phase:      core.PhaseExecute,
		Kind:       core.KindTool,
		Status:     core.StatusRunning,
		Title:      title,
		Detail:     e.Args,
		ToolCallID: e.ToolCallID,
		At:         e.At(),
	}
}

func toolResultPatch(e event.ToolCallResult) ObjectivePatch {
	kind := core.KindTool
	if e.Status == core.StatusError {
		kind = core.KindError
	}
	return ObjectivePatch{
		ID:         ToolObjectiveID(e.ToolCallID),
		LaneID:     toolLane(e.LaneID, e.ParentToolCallID),
		Phase:      core.PhaseExecute,
		Kind:       kind,
		Status:     e.Status,
		Title:      e.ToolName,
		Summary:    e.Summary,
		Detail:     e.Detail,
		ToolCallID: e.ToolCallID,
		Cards:      e.Cards,
		At:         e.At(),
	}
}

func timelinePatches(e event.TimelineUpdate) []ObjectivePatch {
	out := make([]ObjectivePatch, 0, len(e.Operations))
	for _, op := range e.Operations {
		id := "timeline:" + op.ID
		if op.ToolCallID != "" {
			id = ToolObjectiveID(op.ToolCallID)
		}
		at := op.Timestamp
		if at.IsZero() {
			at = e.At()
		}
		out = append(out, ObjectivePatch{
			ID:         id,
			LaneID:     resolveLane(op.LaneID, ""),
			Phase:      op.Phase,
			Kind:       op.Kind,
			Status:     op.Status,
			Title:      op.Title,
			Summary:    op.Summary,
			Detail:     op.Detail,
			ToolCallID: op.ToolCallID,
			At:         at,
		})
	}
	return out
}

// replaceTodos swaps the todo list wholesale. Snapshots older than the
// current list are ignored; objectives of dropped todos are removed.
func (t *txn) replaceTodos(todos []core.Todo, at time.Time) {
	if !t.s.TodosUpdatedAt.IsZero() && at.Before(t.s.TodosUpdatedAt) {
		return
	}
	keep := make(map[string]struct{}, len(todos))
	for _, td := range todos {
		keep[TodoObjectiveID(td.ID)] = struct{}{}
	}
	for id, o := range t.s.Objectives {
		if o.Kind != core.KindTodo || !strings.HasPrefix(id, "todo:") {
			continue
		}
		if _, ok := keep[id]; !ok {
			t.deleteObjective(id)
		}
	}
	if !todosEqual(t.s.Todos, todos) || !t.s.TodosUpdatedAt.Equal(at) {
		t.s.Todos = append([]core.Todo(nil), todos...)
		t.s.TodosUpdatedAt = at
		t.changed = true
	}
	for _, td := range todos {
		t.upsert(ObjectivePatch{
			ID:     TodoObjectiveID(td.ID),
			LaneID: core.PrimaryLaneID,
			Phase:  core.PhasePlan,
			Kind:   core.KindTodo,
			Status: td.Status.ObjectiveStatus(),
			Title:  td.Title,
			At:     at,
		})
	}
}

func todosEqual(a, b []core.Todo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (t *txn) spawn(e event.SubagentSpawn) {
	if e.ToolCallID == "" {
		return
	}
	run, ok := t.s.Subagents[e.ToolCallID]
	if !ok {
		run = core.SubagentRun{ToolCallID: e.ToolCallID, Status: core.StatusRunning, StartedAt: e.At()}
	}
	if e.SubagentType != "" {
		run.SubagentType = e.SubagentType
	}
	if e.Task != "" {
		run.Task = e.Task
	}
	if run != t.s.Subagents[e.ToolCallID] || !ok {
		t.putSubagent(run)
	}

	laneID := SubagentLaneID(e.ToolCallID)
	lane := t.ensureLane(laneID)
	if run.SubagentType != "" && lane.Label != run.SubagentType {
		lane = lane.Clone()
		lane.Label = run.SubagentType
		t.putLane(lane)
	}
	title := run.SubagentType
	if title == "" {
		title = "Subagent"
	}
	t.upsert(ObjectivePatch{
		ID:         laneID,
		LaneID:     laneID,
		Phase:      core.PhaseExecute,
		Kind:       core.KindTool,
		Status:     core.StatusRunning,
		Title:      title,
		Summary:    e.Task,
		ToolCallID: e.ToolCallID,
		At:         e.At(),
	})
}

func (t *txn) endSubagent(e event.SubagentEnd) {
	if e.ToolCallID == "" {
		return
	}
	run, ok := t.s.Subagents[e.ToolCallID]
	if !ok {
		run = core.SubagentRun{ToolCallID: e.ToolCallID, StartedAt: e.At()}
	}
	if !run.Status.IsTerminal() || e.At().After(derefTime(run.EndedAt)) {
		at := e.At()
		run.Status = e.Status
		run.EndedAt = &at
		t.putSubagent(run)
	}
	laneID := SubagentLaneID(e.ToolCallID)
	t.upsert(ObjectivePatch{
		ID:         laneID,
		LaneID:     laneID,
		Phase:      core.PhaseExecute,
		Kind:       core.KindTool,
		Status:     e.Status,
		Summary:    e.Summary,
		ToolCallID: e.ToolCallID,
		At:         e.At(),
	})
}

func (t *txn) appendThinking(e event.SubagentThinkingDelta) {
	if e.ToolCallID == "" {
		return
	}
	run, ok := t.s.Subagents[e.ToolCallID]
	if !ok {
		run = core.SubagentRun{ToolCallID: e.ToolCallID, Status: core.StatusRunning, StartedAt: e.At()}
	}
	run.Thinking = appendCapped(run.Thinking, e.Delta)
	t.putSubagent(run)
}

// appendCapped appends delta and keeps the tail within MaxSubagentThinking,
// marker included.
func appendCapped(current, delta string) string {
	truncated := strings.HasPrefix(current, TruncatedMarker)
	combined := strings.TrimPrefix(current, TruncatedMarker) + delta
	if !truncated && utf8.RuneCountInString(combined) <= MaxSubagentThinking {
		return combined
	}
	tail, _ := util.Tail(combined, MaxSubagentThinking-utf8.RuneCountInString(TruncatedMarker))
	return TruncatedMarker + tail
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
