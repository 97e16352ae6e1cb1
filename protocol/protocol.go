// Package protocol defines the agent run protocol consumed by the runner:
// the Agent interface, the Handler callbacks a run reports through, the
// decoder for AG-UI wire events, and the typed errors transports return.
package protocol

import (
	"context"
	"encoding/json"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
)

// RunInput is everything an agent needs to start one run. ForwardedProps is
// passed through to the backend untouched and must be identical across retry
// attempts of the same turn.
type RunInput struct {
	ThreadID       string         `json:"threadId"`
	RunID          string         `json:"runId"`
	Messages       []core.Message `json:"messages"`
	State          map[string]any `json:"state,omitempty"`
	ForwardedProps map[string]any `json:"forwardedProps,omitempty"`
}

// ToolCall describes a tool invocation reported by the backend. Timestamp
// is in milliseconds since the epoch; zero means the backend sent none.
type ToolCall struct {
	ToolCallID       string `json:"toolCallId"`
	ToolName         string `json:"toolCallName,omitempty"`
	ParentMessageID  string `json:"parentMessageId,omitempty"`
	ParentToolCallID string `json:"parentToolCallId,omitempty"`
	Args             string `json:"args,omitempty"`
	Timestamp        int64  `json:"timestamp,omitempty"`
}

// ToolResult is the output of a tool call. A non-empty Error marks the call
// failed; Status, when set, overrides the default done status.
type ToolResult struct {
	ToolCallID       string `json:"toolCallId"`
	ToolName         string `json:"toolName,omitempty"`
	ParentToolCallID string `json:"parentToolCallId,omitempty"`
	MessageID        string `json:"messageId,omitempty"`
	Content          string `json:"content"`
	Status           string `json:"status,omitempty"`
	Error            string `json:"error,omitempty"`
	Timestamp        int64  `json:"timestamp,omitempty"`
}

// Handler receives the callbacks of one run. Calls arrive sequentially from
// the goroutine executing Agent.Run.
type Handler interface {
	OnTextMessageContent(messageID, delta string)
	OnMessagesChanged(msgs []core.Message)
	// OnCustomEvent may block; a non-nil reply is an interrupt response the
	// transport sends back to the backend when it can.
	OnCustomEvent(ctx context.Context, name string, value json.RawMessage) (any, error)
	OnStateChanged(state map[string]any)
	OnToolCallStart(call ToolCall)
	OnToolCallResult(result ToolResult)
	OnRunFailed(err error)
}

// Agent runs one request/response cycle against an agent backend. Run
// returns when the run finished, failed or ctx was cancelled.
type Agent interface {
	Run(ctx context.Context, in RunInput, h Handler) error
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context, in RunInput, h Handler) error

// Run implements Agent.
func (f AgentFunc) Run(ctx context.Context, in RunInput, h Handler) error { return f(ctx, in, h) }

// NopHandler ignores every callback. Embed it to implement only the
// callbacks you need.
type NopHandler struct{}

// OnTextMessageContent implements Handler.
func (NopHandler) OnTextMessageContent(string, string) {}

// OnMessagesChanged implements Handler.
func (NopHandler) OnMessagesChanged([]core.Message) {}

// OnCustomEvent implements Handler.
func (NopHandler) OnCustomEvent(context.Context, string, json.RawMessage) (any, error) {
	return nil, nil
}

// OnStateChanged implements Handler.
func (NopHandler) OnStateChanged(map[string]any) {}

// OnToolCallStart implements Handler.
func (NopHandler) OnToolCallStart(ToolCall) {}

// OnToolCallResult implements Handler.
func (NopHandler) OnToolCallResult(ToolResult) {}

// OnRunFailed implements Handler.
func (NopHandler) OnRunFailed(error) {}
