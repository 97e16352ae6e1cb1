package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol"
)

// Step is one action a scripted run performs against its handler.
type Step func(ctx context.Context, h protocol.Handler) error

// ScriptBuilder provides a fluent helper for describing one run attempt.
// Example:
//
//	s := NewScript().Text("m1", "Hel", "lo").Custom("tool_call_start", map[string]any{"toolCallId": "c1"}).Build()
type ScriptBuilder struct {
	steps []Step
}

// NewScript starts an empty script.
func NewScript() *ScriptBuilder { return &ScriptBuilder{} }

// Text streams each delta for messageID (chainable).
func (b *ScriptBuilder) Text(messageID string, deltas ...string) *ScriptBuilder {
	for _, d := range deltas {
		b.steps = append(b.steps, func(_ context.Context, h protocol.Handler) error {
			h.OnTextMessageContent(messageID, d)
			return nil
		})
	}
	return b
}

// Custom emits a custom event; the value is JSON-encoded (chainable).
func (b *ScriptBuilder) Custom(name string, value any) *ScriptBuilder {
	b.steps = append(b.steps, func(ctx context.Context, h protocol.Handler) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		_, err = h.OnCustomEvent(ctx, name, raw)
		return err
	})
	return b
}

// State emits a state snapshot (chainable).
func (b *ScriptBuilder) State(state map[string]any) *ScriptBuilder {
	b.steps = append(b.steps, func(_ context.Context, h protocol.Handler) error {
		h.OnStateChanged(state)
		return nil
	})
	return b
}

// Messages emits an authoritative message list (chainable).
func (b *ScriptBuilder) Messages(msgs ...core.Message) *ScriptBuilder {
	b.steps = append(b.steps, func(_ context.Context, h protocol.Handler) error {
		h.OnMessagesChanged(append([]core.Message(nil), msgs...))
		return nil
	})
	return b
}

// ToolStart reports a tool call start (chainable).
func (b *ScriptBuilder) ToolStart(call protocol.ToolCall) *ScriptBuilder {
	b.steps = append(b.steps, func(_ context.Context, h protocol.Handler) error {
		h.OnToolCallStart(call)
		return nil
	})
	return b
}

// ToolResult reports a tool call result (chainable).
func (b *ScriptBuilder) ToolResult(res protocol.ToolResult) *ScriptBuilder {
	b.steps = append(b.steps, func(_ context.Context, h protocol.Handler) error {
		h.OnToolCallResult(res)
		return nil
	})
	return b
}

// Block waits until ctx is cancelled and returns its error (chainable).
func (b *ScriptBuilder) Block() *ScriptBuilder {
	b.steps = append(b.steps, func(ctx context.Context, _ protocol.Handler) error {
		<-ctx.Done()
		return ctx.Err()
	})
	return b
}

// Signal closes ch when reached, letting a test know the run got this far
// (chainable).
func (b *ScriptBuilder) Signal(ch chan<- struct{}) *ScriptBuilder {
	var once sync.Once
	b.steps = append(b.steps, func(context.Context, protocol.Handler) error {
		once.Do(func() { close(ch) })
		return nil
	})
	return b
}

// Fail ends the run with err (chainable).
func (b *ScriptBuilder) Fail(err error) *ScriptBuilder {
	b.steps = append(b.steps, func(context.Context, protocol.Handler) error { return err })
	return b
}

// RunFailed reports err through OnRunFailed and returns it (chainable).
func (b *ScriptBuilder) RunFailed(err error) *ScriptBuilder {
	b.steps = append(b.steps, func(_ context.Context, h protocol.Handler) error {
		h.OnRunFailed(err)
		return err
	})
	return b
}

// Build returns the script.
func (b *ScriptBuilder) Build() []Step { return append([]Step(nil), b.steps...) }

// ScriptedAgent is a protocol.Agent fake. Attempt n runs Scripts[n-1]; once
// the scripts run out the last one is repeated. Every RunInput is recorded.
type ScriptedAgent struct {
	mu      sync.Mutex
	scripts [][]Step
	inputs  []protocol.RunInput
}

var _ protocol.Agent = (*ScriptedAgent)(nil)

// NewScriptedAgent creates an agent running the given scripts in order.
func NewScriptedAgent(scripts ...[]Step) *ScriptedAgent {
	return &ScriptedAgent{scripts: scripts}
}

// Run implements protocol.Agent.
func (a *ScriptedAgent) Run(ctx context.Context, in protocol.RunInput, h protocol.Handler) error {
	a.mu.Lock()
	a.inputs = append(a.inputs, cloneInput(in))
	n := len(a.inputs)
	var steps []Step
	if len(a.scripts) > 0 {
		steps = a.scripts[min(n, len(a.scripts))-1]
	}
	a.mu.Unlock()

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(ctx, h); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Calls returns the number of runs started.
func (a *ScriptedAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inputs)
}

// Inputs returns the recorded run inputs.
func (a *ScriptedAgent) Inputs() []protocol.RunInput {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]protocol.RunInput(nil), a.inputs...)
}

// LastInput returns the most recent run input.
func (a *ScriptedAgent) LastInput() protocol.RunInput {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.inputs) == 0 {
		return protocol.RunInput{}
	}
	return a.inputs[len(a.inputs)-1]
}

func cloneInput(in protocol.RunInput) protocol.RunInput {
	c := in
	c.Messages = append(c.Messages[:0:0], in.Messages...)
	if in.ForwardedProps != nil {
		raw, err := json.Marshal(in.ForwardedProps)
		if err == nil {
			c.ForwardedProps = nil
			_ = json.Unmarshal(raw, &c.ForwardedProps)
		}
	}
	return c
}
