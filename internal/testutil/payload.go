package testutil

import "time"

// PayloadBuilder provides a fluent helper for custom-event payloads.
// Example:
//
//	p := NewPayload().ToolCall("c1").Status("done").At(ts).Build()
type PayloadBuilder struct {
	m map[string]any
}

// NewPayload starts an empty payload.
func NewPayload() *PayloadBuilder { return &PayloadBuilder{m: map[string]any{}} }

// Set sets an arbitrary key (chainable).
func (b *PayloadBuilder) Set(key string, value any) *PayloadBuilder { b.m[key] = value; return b }

// ToolCall sets toolCallId (chainable).
func (b *PayloadBuilder) ToolCall(id string) *PayloadBuilder { return b.Set("toolCallId", id) }

// Objective sets objectiveId (chainable).
func (b *PayloadBuilder) Objective(id string) *PayloadBuilder { return b.Set("objectiveId", id) }

// Lane sets laneId (chainable).
func (b *PayloadBuilder) Lane(id string) *PayloadBuilder { return b.Set("laneId", id) }

// Status sets status (chainable).
func (b *PayloadBuilder) Status(s string) *PayloadBuilder { return b.Set("status", s) }

// Title sets title (chainable).
func (b *PayloadBuilder) Title(s string) *PayloadBuilder { return b.Set("title", s) }

// Summary sets summary (chainable).
func (b *PayloadBuilder) Summary(s string) *PayloadBuilder { return b.Set("summary", s) }

// At sets the timestamp as epoch milliseconds (chainable).
func (b *PayloadBuilder) At(t time.Time) *PayloadBuilder { return b.Set("timestamp", t.UnixMilli()) }

// Build returns a copy of the payload.
func (b *PayloadBuilder) Build() map[string]any {
	out := make(map[string]any, len(b.m))
	for k, v := range b.m {
		out[k] = v
	}
	return out
}
