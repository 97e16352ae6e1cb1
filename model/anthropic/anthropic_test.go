package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/model"
)

func sse(w http.ResponseWriter, event string, data map[string]any) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
}

func TestModel_Streaming(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "text/event-stream")
		sse(w, "message_start", map[string]any{"type": "message_start", "message": map[string]any{
			"id": "msg_1", "type": "message", "role": "assistant", "content": []any{},
			"model": "claude", "stop_reason": nil, "stop_sequence": nil,
			"usage": map[string]any{"input_tokens": 7, "output_tokens": 0},
		}})
		sse(w, "content_block_start", map[string]any{"type": "content_block_start", "index": 0,
			"content_block": map[string]any{"type": "text", "text": ""}})
		for _, d := range []string{"Hel", "lo"} {
			sse(w, "content_block_delta", map[string]any{"type": "content_block_delta", "index": 0,
				"delta": map[string]any{"type": "text_delta", "text": d}})
		}
		sse(w, "content_block_stop", map[string]any{"type": "content_block_stop", "index": 0})
		sse(w, "message_delta", map[string]any{"type": "message_delta",
			"delta": map[string]any{"stop_reason": "end_turn", "stop_sequence": nil},
			"usage": map[string]any{"output_tokens": 2}})
		sse(w, "message_stop", map[string]any{"type": "message_stop"})
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.ClientOptions = []option.RequestOption{option.WithBaseURL(srv.URL), option.WithMaxRetries(0)}
	})
	respCh, errCh := m.Generate(context.Background(), model.Request{
		Instructions: "be brief",
		Messages: []core.Message{
			{Role: core.RoleUser, Content: "a"},
			{Role: core.RoleUser, Content: "b"},
			{Role: core.RoleAssistant, Content: "c"},
		},
		Stream: true,
	})
	var partial string
	var final model.Response
	for r := range respCh {
		if r.Partial {
			partial += r.Text
		} else {
			final = r
		}
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, "Hello", partial)
	assert.Equal(t, "Hello", final.Text)
	assert.Equal(t, "end_turn", final.FinishReason)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 9, final.Usage.TotalTokens)

	msgs, _ := body["messages"].([]any)
	assert.Len(t, msgs, 2, "consecutive user messages are merged")
}

func TestBuildMessages(t *testing.T) {
	got := buildMessages([]core.Message{
		{Role: core.RoleSystem, Content: "s"},
		{Role: core.RoleUser, Content: " "},
		{Role: core.RoleUser, Content: "u"},
		{Role: core.RoleTool, Content: "t"},
		{Role: core.RoleAssistant, Content: "a"},
	})
	require.Len(t, got, 2)
	assert.Len(t, got[0].Content, 1)
}
