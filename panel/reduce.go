package panel

import (
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/event"
)

// Reduce applies ev to s and returns the next state. s is never mutated:
// touched maps and slices are copied before they are written.
func Reduce(s State, ev event.Event) State {
	if ev == nil {
		return s
	}
	t := newTxn(s)
	switch e := ev.(type) {
	case RunStarted:
		next := NewState(e.RunID)
		next.Version = s.Version + 1
		return next
	case RunFinished:
		t.finish(e.At())
	case RunIncomplete:
		t.incomplete(e.At())
	case event.ObjectiveHintUpdate:
		t.upsert(hintPatch(e))
	case event.ThinkingTrace:
		t.upsert(thoughtPatch(e))
	case event.ToolEvidenceUpdate:
		t.upsert(evidencePatch(e))
	case event.ToolCallStart:
		t.upsert(toolStartPatch(e))
	case event.ToolCallResult:
		t.upsert(toolResultPatch(e))
	case event.TimelineUpdate:
		for _, p := range timelinePatches(e) {
			t.upsert(p)
		}
	case event.TodosUpdate:
		t.replaceTodos(e.Todos, e.At())
	case event.TodosSnapshot:
		t.replaceTodos(e.Todos, e.At())
	case event.SubagentSpawn:
		t.spawn(e)
	case event.SubagentEnd:
		t.endSubagent(e)
	case event.SubagentThinkingDelta:
		t.appendThinking(e)
	default:
		return s
	}
	return t.commit()
}

// shouldReplace decides whether an incoming update with status and timestamp
// at may overwrite existing. An empty status competes on timestamp only.
func shouldReplace(existing core.Objective, status core.Status, at time.Time) bool {
	if status == "" {
		return !at.Before(existing.UpdatedAt)
	}
	eTerm, iTerm := existing.Status.IsTerminal(), status.IsTerminal()
	switch {
	case eTerm && !iTerm:
		return false
	case !eTerm && iTerm:
		return true
	case at.After(existing.UpdatedAt):
		return true
	case at.Before(existing.UpdatedAt):
		return false
	}
	return status.Weight() >= existing.Status.Weight()
}

// txn accumulates copy-on-write changes against a base state.
type txn struct {
	s          State
	objCopied  bool
	laneCopied bool
	subCopied  bool
	touched    map[string]struct{}
	changed    bool
}

func newTxn(s State) *txn {
	// A zero State is usable; fresh maps here are private to the copy.
	if s.Lanes == nil {
		s.Lanes = map[string]core.Lane{}
	}
	if s.Objectives == nil {
		s.Objectives = map[string]core.Objective{}
	}
	if s.Subagents == nil {
		s.Subagents = map[string]core.SubagentRun{}
	}
	if s.RunStatus == "" {
		s.RunStatus = runStatus(s)
	}
	return &txn{s: s, touched: map[string]struct{}{}}
}

func (t *txn) putObjective(o core.Objective) {
	if !t.objCopied {
		t.s.Objectives = maps.Clone(t.s.Objectives)
		t.objCopied = true
	}
	t.s.Objectives[o.ID] = o
	t.touched[o.LaneID] = struct{}{}
	t.changed = true
}

func (t *txn) deleteObjective(id string) {
	o, ok := t.s.Objectives[id]
	if !ok {
		return
	}
	if !t.objCopied {
		t.s.Objectives = maps.Clone(t.s.Objectives)
		t.objCopied = true
	}
	delete(t.s.Objectives, id)
	if lane, ok := t.s.Lanes[o.LaneID]; ok {
		lane = lane.Clone()
		lane.ObjectiveIDs = slices.DeleteFunc(lane.ObjectiveIDs, func(x string) bool { return x == id })
		t.putLane(lane)
	}
	if t.s.ActiveObjectiveID == id {
		t.fallbackActive(o.LaneID, id)
	}
	t.touched[o.LaneID] = struct{}{}
	t.changed = true
}

func (t *txn) putLane(l core.Lane) {
	if !t.laneCopied {
		t.s.Lanes = maps.Clone(t.s.Lanes)
		t.laneCopied = true
	}
	if _, exists := t.s.Lanes[l.ID]; !exists {
		if l.ID == core.PrimaryLaneID {
			t.s.LaneOrder = append([]string{l.ID}, t.s.LaneOrder...)
		} else {
			t.s.LaneOrder = append(slices.Clone(t.s.LaneOrder), l.ID)
		}
	}
	t.s.Lanes[l.ID] = l
	t.touched[l.ID] = struct{}{}
	t.changed = true
}

func (t *txn) putSubagent(r core.SubagentRun) {
	if !t.subCopied {
		t.s.Subagents = maps.Clone(t.s.Subagents)
		t.subCopied = true
	}
	t.s.Subagents[r.ToolCallID] = r
	t.changed = true
}

// ensureLane returns the lane with id, creating it when missing.
func (t *txn) ensureLane(id string) core.Lane {
	if l, ok := t.s.Lanes[id]; ok {
		return l
	}
	l := core.Lane{ID: id, Kind: core.LaneSubagent, Status: core.StatusDone}
	if id == core.PrimaryLaneID {
		l.Kind, l.Label = core.LanePrimary, "Primary"
	} else {
		tcid := strings.TrimPrefix(id, core.SubagentLanePrefix)
		l.Label = tcid
		if r, ok := t.s.Subagents[tcid]; ok && r.SubagentType != "" {
			l.Label = r.SubagentType
		}
	}
	t.putLane(l)
	return l
}

// upsert is the single entry point for objective changes.
func (t *txn) upsert(p ObjectivePatch) {
	if p.ID == "" {
		return
	}
	if p.LaneID == "" {
		p.LaneID = core.PrimaryLaneID
	}
	existing, ok := t.s.Objectives[p.ID]
	if !ok {
		o := core.Objective{
			ID:         p.ID,
			LaneID:     p.LaneID,
			Phase:      p.Phase,
			Kind:       p.Kind,
			Status:     p.Status,
			Title:      p.Title,
			Summary:    p.Summary,
			Detail:     p.Detail,
			ToolCallID: p.ToolCallID,
			StartedAt:  p.At,
			UpdatedAt:  p.At,
		}
		if o.Status == "" {
			o.Status = core.StatusRunning
		}
		if o.Phase == "" {
			o.Phase = core.PhaseExecute
		}
		if o.Kind == "" {
			o.Kind = core.KindThought
		}
		o.EvidenceCards = mergeCards(nil, p.Cards)
		if o.Status.IsTerminal() {
			at := p.At
			o.EndedAt = &at
		}
		lane := t.ensureLane(o.LaneID).Clone()
		lane.ObjectiveIDs = append(lane.ObjectiveIDs, o.ID)
		t.putLane(lane)
		t.putObjective(o)
		t.trackActive(o)
		return
	}

	if !shouldReplace(existing, p.Status, p.At) {
		return
	}
	merged := merge(existing, p)
	if reflect.DeepEqual(merged, existing) {
		return
	}
	t.putObjective(merged)
	t.trackActive(merged)
}

func merge(e core.Objective, p ObjectivePatch) core.Objective {
	o := e.Clone()
	wasTerminal := o.Status.IsTerminal()
	if p.Status != "" {
		o.Status = p.Status
	}
	if p.Phase != "" {
		o.Phase = p.Phase
	}
	if p.Kind != "" {
		o.Kind = p.Kind
	}
	if p.Title != "" {
		o.Title = p.Title
	}
	if p.Summary != "" {
		o.Summary = p.Summary
	}
	if p.Detail != "" {
		o.Detail = p.Detail
	}
	if p.ToolCallID != "" {
		o.ToolCallID = p.ToolCallID
	}
	o.EvidenceCards = mergeCards(o.EvidenceCards, p.Cards)
	if p.At.After(o.UpdatedAt) {
		o.UpdatedAt = p.At
	}
	switch {
	case !o.Status.IsTerminal():
		o.EndedAt = nil
	case o.EndedAt == nil || (p.Status != "" && wasTerminal && p.At.After(*o.EndedAt)):
		at := p.At
		o.EndedAt = &at
	}
	return o
}

// mergeCards appends unseen cards and keeps at most event.MaxCards.
func mergeCards(existing, incoming []core.ToolEvidenceCard) []core.ToolEvidenceCard {
	if len(incoming) == 0 {
		return existing
	}
	out := slices.Clone(existing)
	for _, c := range incoming {
		if len(out) >= event.MaxCards {
			break
		}
		dup := false
		for i, x := range out {
			if x.Title == c.Title && x.URL == c.URL && x.Snippet == c.Snippet {
				if c.Status != "" {
					out[i].Status = c.Status
				}
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// trackActive keeps ActiveObjectiveID on the most recently updated running
// objective.
func (t *txn) trackActive(o core.Objective) {
	if o.Status == core.StatusRunning {
		if cur, ok := t.s.Objectives[t.s.ActiveObjectiveID]; ok && cur.ID != o.ID &&
			cur.Status == core.StatusRunning && cur.UpdatedAt.After(o.UpdatedAt) {
			return
		}
		t.s.ActiveObjectiveID, t.s.ActiveLaneID = o.ID, o.LaneID
		return
	}
	if o.ID == t.s.ActiveObjectiveID {
		t.fallbackActive(o.LaneID, o.ID)
	}
}

func (t *txn) fallbackActive(laneID, except string) {
	var best core.Objective
	found := false
	for _, id := range t.s.Lanes[laneID].ObjectiveIDs {
		o, ok := t.s.Objectives[id]
		if !ok || id == except || o.Status != core.StatusRunning {
			continue
		}
		if !found || o.UpdatedAt.After(best.UpdatedAt) {
			best, found = o, true
		}
	}
	if found {
		t.s.ActiveObjectiveID, t.s.ActiveLaneID = best.ID, best.LaneID
		return
	}
	t.s.ActiveObjectiveID, t.s.ActiveLaneID = "", ""
}

// commit refreshes derived statuses of touched lanes and the run.
func (t *txn) commit() State {
	if !t.changed {
		return t.s
	}
	for id := range t.touched {
		lane, ok := t.s.Lanes[id]
		if !ok {
			continue
		}
		statuses := make([]core.Status, 0, len(lane.ObjectiveIDs))
		for _, oid := range lane.ObjectiveIDs {
			if o, ok := t.s.Objectives[oid]; ok {
				statuses = append(statuses, o.Status)
			}
		}
		if st := core.FoldStatus(statuses...); st != lane.Status {
			lane = lane.Clone()
			lane.Status = st
			if !t.laneCopied {
				t.s.Lanes = maps.Clone(t.s.Lanes)
				t.laneCopied = true
			}
			t.s.Lanes[id] = lane
		}
	}
	t.s.RunStatus = runStatus(t.s)
	t.s.Version++
	return t.s
}

func runStatus(s State) core.Status {
	if len(s.Lanes) == 0 {
		return core.StatusPending
	}
	statuses := make([]core.Status, 0, len(s.Lanes))
	for _, id := range s.LaneOrder {
		if l, ok := s.Lanes[id]; ok {
			statuses = append(statuses, l.Status)
		}
	}
	return core.FoldStatus(statuses...)
}
