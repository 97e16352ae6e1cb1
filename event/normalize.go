package event

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/internal/util"
)

// Options configures a Normalizer.
type Options struct {
	// Now supplies the fallback timestamp for payloads without a parseable one.
	Now func() time.Time
}

// Normalizer converts raw custom-event payloads into typed events.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a Normalizer. By default it uses time.Now.
func NewNormalizer(optFns ...func(o *Options)) *Normalizer {
	opts := Options{Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Normalizer{now: opts.Now}
}

var defaultNormalizer = NewNormalizer()

// Normalize converts a payload using the default wall clock.
func Normalize(name string, value any) (Event, bool) {
	return defaultNormalizer.Normalize(name, value)
}

// Normalize converts one {name, value} custom event. It returns false when the
// name is unknown or the payload does not carry the fields the event requires.
func (n *Normalizer) Normalize(name string, value any) (ev Event, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ev, ok = nil, false
		}
	}()

	res, valid := parsePayload(value)
	if !valid {
		return nil, false
	}

	switch strings.TrimSpace(name) {
	case NameObjectiveHint:
		return n.objectiveHint(res)
	case NameThinkingTrace:
		return n.thinkingTrace(res)
	case NameToolEvidence:
		return n.toolEvidence(res)
	case NameTodosUpdate:
		todos, ok := parseTodos(res)
		if !ok {
			return nil, false
		}
		return TodosUpdate{Meta: n.meta(res), Todos: todos}, true
	case NameTodosSnapshot:
		todos, ok := parseTodos(res)
		if !ok {
			return nil, false
		}
		return TodosSnapshot{Meta: n.meta(res), Todos: todos}, true
	case NameTimelineUpdate:
		return n.timeline(res)
	case NameSubagentSpawn:
		return n.subagentSpawn(res)
	case NameSubagentEnd:
		return n.subagentEnd(res)
	case NameSubagentThinkingDelta:
		return n.subagentDelta(res)
	case NameToolCallStart:
		return n.toolCallStart(res)
	case NameToolCallResult:
		return n.toolCallResult(res)
	default:
		return nil, false
	}
}

// parsePayload accepts decoded maps, raw JSON and any marshalable value.
func parsePayload(value any) (gjson.Result, bool) {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return gjson.Result{}, false
	case gjson.Result:
		if !v.IsObject() && !v.IsArray() {
			return gjson.Result{}, false
		}
		return v, true
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return gjson.Result{}, false
		}
		raw = b
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, false
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() && !res.IsArray() {
		return gjson.Result{}, false
	}
	return res, true
}

func (n *Normalizer) objectiveHint(res gjson.Result) (Event, bool) {
	if !res.IsObject() {
		return nil, false
	}
	ev := ObjectiveHintUpdate{
		Meta:        n.meta(res),
		ObjectiveID: str(res, "objectiveId", "objective_id", "id"),
		LaneID:      str(res, "laneId", "lane_id"),
		ToolCallID:  str(res, "toolCallId", "tool_call_id"),
		Phase:       coercePhase(str(res, "phase"), core.PhasePlan),
		Kind:        coerceKind(str(res, "kind", "type"), core.KindThought),
		Status:      coerceStatus(str(res, "status"), core.StatusRunning),
		Title:       util.Clamp(str(res, "title", "objective"), MaxTitleLen),
		Summary:     util.Clamp(str(res, "summary", "description"), MaxSummaryLen),
		Detail:      util.Clamp(str(res, "detail", "details"), MaxDetailLen),
	}
	if ev.ObjectiveID == "" && ev.Title == "" && ev.Summary == "" {
		return nil, false
	}
	return ev, true
}

func (n *Normalizer) thinkingTrace(res gjson.Result) (Event, bool) {
	if !res.IsObject() {
		return nil, false
	}
	content := str(res, "content", "summary", "thought", "text")
	if content == "" {
		return nil, false
	}
	return ThinkingTrace{
		Meta:       n.meta(res),
		ID:         str(res, "id", "traceId", "trace_id"),
		LaneID:     str(res, "laneId", "lane_id"),
		ToolCallID: str(res, "toolCallId", "tool_call_id"),
		Phase:      coercePhase(str(res, "phase"), core.PhasePlan),
		Status:     coerceStatus(str(res, "status"), core.StatusRunning),
		Title:      util.Clamp(str(res, "title"), MaxTitleLen),
		Content:    util.Clamp(content, MaxSummaryLen),
		Detail:     util.Clamp(str(res, "detail", "details"), MaxDetailLen),
	}, true
}

func (n *Normalizer) toolEvidence(res gjson.Result) (Event, bool) {
	if !res.IsObject() {
		return nil, false
	}
	id := str(res, "toolCallId", "tool_call_id")
	if id == "" {
		return nil, false
	}
	return ToolEvidenceUpdate{
		Meta:             n.meta(res),
		ToolCallID:       id,
		ToolName:         str(res, "toolName", "tool_name", "name"),
		LaneID:           str(res, "laneId", "lane_id"),
		ParentToolCallID: str(res, "parentToolCallId", "parent_tool_call_id"),
		Status:           coerceStatus(str(res, "status"), ""),
		Summary:          util.Clamp(str(res, "summary", "output"), MaxSummaryLen),
		Detail:           util.Clamp(str(res, "detail", "details"), MaxDetailLen),
		Cards:            parseCards(res),
	}, true
}

func (n *Normalizer) timeline(res gjson.Result) (Event, bool) {
	if !res.IsObject() {
		return nil, false
	}
	opsRes := first(res, "operations", "ops", "items")
	if !opsRes.IsArray() {
		return nil, false
	}
	ev := TimelineUpdate{
		Meta:               n.meta(res),
		CurrentOperationID: str(res, "currentOperationId", "current_operation_id"),
	}
	for _, op := range opsRes.Array() {
		if !op.IsObject() {
			continue
		}
		id := str(op, "id", "operationId", "operation_id")
		if id == "" {
			continue
		}
		o := TimelineOperation{
			ID:         id,
			LaneID:     str(op, "laneId", "lane_id"),
			ToolCallID: str(op, "toolCallId", "tool_call_id"),
			Kind:       coerceKind(str(op, "kind", "type"), core.KindTool),
			Phase:      coercePhase(str(op, "phase"), core.PhaseExecute),
			Status:     coerceStatus(str(op, "status"), core.StatusPending),
			Title:      util.Clamp(str(op, "title", "name"), MaxTitleLen),
			Summary:    util.Clamp(str(op, "summary", "description"), MaxSummaryLen),
			Detail:     util.Clamp(str(op, "detail", "details"), MaxDetailLen),
		}
		if ts, ok := parseTime(first(op, "timestamp", "updatedAt", "updated_at", "endTime", "end_time", "startTime", "start_time")); ok {
			o.Timestamp = ts
		}
		ev.Operations = append(ev.Operations, o)
	}
	if len(ev.Operations) == 0 {
		return nil, false
	}
	return ev, true
}

func (n *Normalizer) subagentSpawn(res gjson.Result) (Event, bool) {
	if !res.IsObject() {
		return nil, false
	}
	id := str(res, "toolCallId", "tool_call_id")
	if id == "" {
		return nil, false
	}
	return SubagentSpawn{
		Meta:         n.meta(res),
		ToolCallID:   id,
		SubagentType: str(res, "subagentType", "subagent_type", "type"),
		Task:         util.Clamp(str(res, "task", "description"), MaxSummaryLen),
	}, true
}

func (n *Normalizer) subagentEnd(res gjson.Result) (Event, bool) {
	if !res.IsObject() {
		return nil, false
	}
	id := str(res, "toolCallId", "tool_call_id")
	if id == "" {
		return nil, false
	}
	return SubagentEnd{
		Meta:       n.meta(res),
		ToolCallID: id,
		Status:     coerceStatus(str(res, "status"), core.StatusDone),
		Summary:    util.Clamp(str(res, "summary", "result", "output"), MaxSummaryLen),
	}, true
}

func (n *Normalizer) subagentDelta(res gjson.Result) (Event, bool) {
	if !res.IsObject() {
		return nil, false
	}
	id := str(res, "toolCallId", "tool_call_id")
	delta := first(res, "delta", "content", "text").String()
	if id == "" || delta == "" {
		return nil, false
	}
	return SubagentThinkingDelta{Meta: n.meta(res), ToolCallID: id, Delta: delta}, true
}

func (n *Normalizer) toolCallStart(res gjson.Result) (Event, bool) {
	if !res.IsObject() {
		return nil, false
	}
	id := str(res, "toolCallId", "tool_call_id", "id")
	if id == "" {
		return nil, false
	}
	return ToolCallStart{
		Meta:             n.meta(res),
		ToolCallID:       id,
		ToolName:         str(res, "toolName", "tool_name", "toolCallName", "name"),
		LaneID:           str(res, "laneId", "lane_id"),
		ParentToolCallID: str(res, "parentToolCallId", "parent_tool_call_id"),
		Args:             util.Clamp(text(first(res, "args", "arguments", "input")), MaxDetailLen),
	}, true
}

func (n *Normalizer) toolCallResult(res gjson.Result) (Event, bool) {
	if !res.IsObject() {
		return nil, false
	}
	id := str(res, "toolCallId", "tool_call_id", "id")
	if id == "" {
		return nil, false
	}
	ev := ToolCallResult{
		Meta:             n.meta(res),
		ToolCallID:       id,
		ToolName:         str(res, "toolName", "tool_name", "name"),
		LaneID:           str(res, "laneId", "lane_id"),
		ParentToolCallID: str(res, "parentToolCallId", "parent_tool_call_id"),
		Status:           coerceStatus(str(res, "status"), core.StatusDone),
		Summary:          util.Clamp(strings.TrimSpace(text(first(res, "summary", "result", "output", "content"))), MaxSummaryLen),
		Detail:           util.Clamp(str(res, "detail", "details"), MaxDetailLen),
		Cards:            parseCards(res),
	}
	if e := first(res, "error"); e.Exists() && e.Type != gjson.False && !(e.Type == gjson.String && strings.TrimSpace(e.Str) == "") {
		ev.Status = core.StatusError
		if msg := strings.TrimSpace(text(e)); msg != "" && msg != "true" {
			ev.Summary = util.Clamp(msg, MaxSummaryLen)
		}
	}
	return ev, true
}

func parseTodos(res gjson.Result) ([]core.Todo, bool) {
	list := res
	if res.IsObject() {
		list = first(res, "todos", "items")
	}
	if !list.IsArray() {
		return nil, false
	}
	todos := make([]core.Todo, 0, len(list.Array()))
	for i, item := range list.Array() {
		var t core.Todo
		switch {
		case item.IsObject():
			t = core.Todo{
				ID:     str(item, "id", "todoId", "todo_id"),
				Title:  util.Clamp(str(item, "title", "content", "text", "description"), MaxTitleLen),
				Status: coerceTodoStatus(str(item, "status")),
			}
		case item.Type == gjson.String:
			t = core.Todo{Title: util.Clamp(strings.TrimSpace(item.Str), MaxTitleLen), Status: core.TodoPending}
		default:
			continue
		}
		if t.Title == "" {
			continue
		}
		if t.ID == "" {
			t.ID = "todo-" + strconv.Itoa(i+1)
		}
		todos = append(todos, t)
	}
	return todos, true
}

func parseCards(res gjson.Result) []core.ToolEvidenceCard {
	list := first(res, "cards", "evidenceCards", "evidence_cards", "evidence")
	if !list.IsArray() {
		return nil
	}
	var cards []core.ToolEvidenceCard
	for _, c := range list.Array() {
		if len(cards) == MaxCards {
			break
		}
		if !c.IsObject() {
			continue
		}
		card := core.ToolEvidenceCard{
			Title:   util.Clamp(str(c, "title", "name"), MaxCardTitle),
			Snippet: util.Clamp(str(c, "snippet", "excerpt", "content", "text"), MaxCardSnippet),
			URL:     util.Clamp(str(c, "url", "href", "link"), MaxCardURL),
		}
		if s := str(c, "status"); s != "" {
			card.Status = coerceStatus(s, "")
		}
		if card.Title == "" && card.Snippet == "" && card.URL == "" {
			continue
		}
		cards = append(cards, card)
	}
	return cards
}

func (n *Normalizer) meta(res gjson.Result) Meta {
	if !res.IsObject() {
		return Meta{Timestamp: n.now(), Inferred: true}
	}
	if ts, ok := parseTime(first(res, "timestamp", "ts", "updatedAt", "updated_at", "time")); ok {
		return Meta{Timestamp: ts}
	}
	return Meta{Timestamp: n.now(), Inferred: true}
}

// parseTime reads epoch seconds, epoch milliseconds (values above 1e12) or
// RFC 3339 strings.
func parseTime(res gjson.Result) (time.Time, bool) {
	switch res.Type {
	case gjson.Number:
		return fromEpoch(res.Num)
	case gjson.String:
		s := strings.TrimSpace(res.Str)
		if s == "" {
			return time.Time{}, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func fromEpoch(f float64) (time.Time, bool) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

var statusAliases = map[string]core.Status{
	"in_progress": core.StatusRunning,
	"running":     core.StatusRunning,
	"active":      core.StatusRunning,
	"started":     core.StatusRunning,
	"completed":   core.StatusDone,
	"complete":    core.StatusDone,
	"done":        core.StatusDone,
	"success":     core.StatusDone,
	"succeeded":   core.StatusDone,
	"failed":      core.StatusError,
	"failure":     core.StatusError,
	"error":       core.StatusError,
	"pending":     core.StatusPending,
	"queued":      core.StatusPending,
	"unknown":     core.StatusUnknown,
}

// CoerceStatus maps a free-form status onto core.Status, returning fallback
// for unrecognised values.
func CoerceStatus(s string, fallback core.Status) core.Status {
	return coerceStatus(s, fallback)
}

func coerceStatus(s string, fallback core.Status) core.Status {
	if st, ok := statusAliases[normKey(s)]; ok {
		return st
	}
	return fallback
}

func coerceTodoStatus(s string) core.TodoStatus {
	switch coerceStatus(s, core.StatusPending) {
	case core.StatusRunning:
		return core.TodoInProgress
	case core.StatusDone:
		return core.TodoDone
	default:
		return core.TodoPending
	}
}

func coercePhase(s string, fallback core.Phase) core.Phase {
	switch normKey(s) {
	case "plan", "planning":
		return core.PhasePlan
	case "gather", "gathering", "research", "search", "retrieve":
		return core.PhaseGather
	case "execute", "execution", "act", "action", "run":
		return core.PhaseExecute
	case "synthesize", "synthesis", "answer", "respond", "summarize":
		return core.PhaseSynthesize
	}
	return fallback
}

func coerceKind(s string, fallback core.ObjectiveKind) core.ObjectiveKind {
	switch normKey(s) {
	case "thought", "thinking", "reasoning":
		return core.KindThought
	case "tool", "tool_call", "function":
		return core.KindTool
	case "todo", "task":
		return core.KindTodo
	case "error", "failure":
		return core.KindError
	}
	return fallback
}

// normKey lower-cases and folds separators so "In-Progress" matches "in_progress".
func normKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// first returns the first existing, non-null value among keys.
func first(res gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := res.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// str reads the first string-like value among keys, trimmed. Numbers are
// formatted so numeric IDs survive.
func str(res gjson.Result, keys ...string) string {
	v := first(res, keys...)
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.Str)
	case gjson.Number:
		return v.Raw
	}
	return ""
}

// text renders any value as display text: strings verbatim, everything else
// as compact JSON.
func text(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Null:
		return ""
	case gjson.JSON, gjson.Number, gjson.True, gjson.False:
		return v.Raw
	}
	return fmt.Sprint(v.Value())
}
