package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol"
)

// AgentOptions configures an Agent.
type AgentOptions struct {
	// Instructions is sent as the system prompt.
	Instructions string
	Logger       logging.Logger
}

// Agent adapts a Model to protocol.Agent.
type Agent struct {
	model        Model
	instructions string
	logger       logging.Logger
}

var _ protocol.Agent = (*Agent)(nil)

// NewAgent wraps m.
func NewAgent(m Model, optFns ...func(o *AgentOptions)) *Agent {
	opts := AgentOptions{
		Instructions: "You are a helpful support assistant. Answer concisely.",
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Agent{model: m, instructions: opts.Instructions, logger: logging.OrNoOp(opts.Logger)}
}

// NewEchoAgent returns an Agent over a fresh EchoModel.
func NewEchoAgent(optFns ...func(o *AgentOptions)) *Agent {
	return NewAgent(NewEchoModel("echo", "local"), optFns...)
}

// Model returns the wrapped model.
func (a *Agent) Model() Model { return a.model }

// Run implements protocol.Agent.
func (a *Agent) Run(ctx context.Context, in protocol.RunInput, h protocol.Handler) error {
	info := a.model.Info()
	objectiveID := "model:" + in.RunID
	msgID := core.NewID()

	a.hint(ctx, h, objectiveID, "running", fmt.Sprintf("Generating a reply with %s", info.Name), "")

	req := Request{
		Instructions: a.instructionsFor(in),
		Messages:     in.Messages,
		Stream:       true,
	}
	respCh, errCh := a.model.Generate(ctx, req)

	var (
		full   string
		finish string
		text   strings.Builder
	)
	for resp := range respCh {
		if resp.Partial {
			text.WriteString(resp.Text)
			h.OnTextMessageContent(msgID, resp.Text)
			continue
		}
		full, finish = resp.Text, resp.FinishReason
		if resp.Usage != nil {
			a.logger.Debug("model usage", "model", info.Name,
				"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
		}
	}
	if err := <-errCh; err != nil {
		a.hint(ctx, h, objectiveID, "error", "Model call failed", err.Error())
		return fmt.Errorf("%s generate: %w", info.Provider, err)
	}
	if full == "" {
		full = text.String()
	}
	if text.Len() == 0 && full != "" {
		h.OnTextMessageContent(msgID, full)
	}

	summary := ""
	if finish == "length" || finish == "max_tokens" {
		summary = "Reply was cut off at the token limit"
	}
	a.hint(ctx, h, objectiveID, "done", fmt.Sprintf("Generated a reply with %s", info.Name), summary)

	final := append(append([]core.Message(nil), in.Messages...), core.Message{
		ID:      msgID,
		Role:    core.RoleAssistant,
		Content: full,
	})
	h.OnMessagesChanged(final)
	return nil
}

// instructionsFor appends the steering prompt of a continued objective.
func (a *Agent) instructionsFor(in protocol.RunInput) string {
	parts := []string{a.instructions}
	for _, m := range in.Messages {
		if m.Role == core.RoleSystem && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	if oc, ok := in.ForwardedProps["overlap_objective_context"].(map[string]any); ok {
		if p, _ := oc["prompt"].(string); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (a *Agent) hint(ctx context.Context, h protocol.Handler, id, status, title, summary string) {
	payload := []byte(`{}`)
	for _, kv := range [][2]string{
		{"objectiveId", id},
		{"phase", "synthesize"},
		{"kind", "thought"},
		{"status", status},
		{"title", title},
		{"summary", summary},
	} {
		if kv[1] == "" {
			continue
		}
		payload, _ = sjson.SetBytes(payload, kv[0], kv[1])
	}
	if _, err := h.OnCustomEvent(ctx, "objective_hint_update", json.RawMessage(payload)); err != nil {
		a.logger.Warn("hint rejected", "objective_id", id, "error", err)
	}
}
