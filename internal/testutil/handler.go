package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol"
)

// CustomEvent is one recorded OnCustomEvent call.
type CustomEvent struct {
	Name  string
	Value json.RawMessage
}

// RecordingHandler is a protocol.Handler that records every callback. Reply,
// when set, answers custom events.
type RecordingHandler struct {
	Reply func(name string, value json.RawMessage) (any, error)

	mu       sync.Mutex
	text     map[string]string
	order    []string
	customs  []CustomEvent
	states   []map[string]any
	messages [][]core.Message
	starts   []protocol.ToolCall
	results  []protocol.ToolResult
	failures []error
}

var _ protocol.Handler = (*RecordingHandler)(nil)

// NewRecordingHandler creates an empty recorder.
func NewRecordingHandler() *RecordingHandler {
	return &RecordingHandler{text: map[string]string{}}
}

// OnTextMessageContent implements protocol.Handler.
func (r *RecordingHandler) OnTextMessageContent(messageID, delta string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.text[messageID]; !ok {
		r.order = append(r.order, messageID)
	}
	r.text[messageID] += delta
}

// OnMessagesChanged implements protocol.Handler.
func (r *RecordingHandler) OnMessagesChanged(msgs []core.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msgs)
}

// OnCustomEvent implements protocol.Handler.
func (r *RecordingHandler) OnCustomEvent(_ context.Context, name string, value json.RawMessage) (any, error) {
	r.mu.Lock()
	r.customs = append(r.customs, CustomEvent{Name: name, Value: append(json.RawMessage(nil), value...)})
	reply := r.Reply
	r.mu.Unlock()
	if reply != nil {
		return reply(name, value)
	}
	return nil, nil
}

// OnStateChanged implements protocol.Handler.
func (r *RecordingHandler) OnStateChanged(state map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

// OnToolCallStart implements protocol.Handler.
func (r *RecordingHandler) OnToolCallStart(call protocol.ToolCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, call)
}

// OnToolCallResult implements protocol.Handler.
func (r *RecordingHandler) OnToolCallResult(res protocol.ToolResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

// OnRunFailed implements protocol.Handler.
func (r *RecordingHandler) OnRunFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

// Text returns the text streamed for messageID.
func (r *RecordingHandler) Text(messageID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text[messageID]
}

// Customs returns the recorded custom events.
func (r *RecordingHandler) Customs() []CustomEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CustomEvent(nil), r.customs...)
}

// States returns the recorded state snapshots.
func (r *RecordingHandler) States() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.states...)
}

// MessageLists returns every recorded message snapshot.
func (r *RecordingHandler) MessageLists() [][]core.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]core.Message(nil), r.messages...)
}

// ToolStarts returns the recorded tool call starts.
func (r *RecordingHandler) ToolStarts() []protocol.ToolCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.ToolCall(nil), r.starts...)
}

// ToolResults returns the recorded tool call results.
func (r *RecordingHandler) ToolResults() []protocol.ToolResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.ToolResult(nil), r.results...)
}

// Failures returns the errors reported through OnRunFailed.
func (r *RecordingHandler) Failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.failures...)
}

// MessageIDs returns the streamed message IDs in order of first delta.
func (r *RecordingHandler) MessageIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}
