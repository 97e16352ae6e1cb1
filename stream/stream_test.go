package stream

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello world", "Hello world"},
		{"data_uri_image", "Here it is:\n\n![chart](data:image/png;base64,AAAA)\n\nDone.", "Here it is:\n\nDone."},
		{"remote_image_kept", "![logo](https://example.com/a.png)", "![logo](https://example.com/a.png)"},
		{"raw_tool_payload", `{"tool_call_id":"c1","arguments":{"q":"x"}}`, ""},
		{"streaming_partial_payload", `{"tool_calls":[{"id":"c1","function":{"na`, ""},
		{"ordinary_json_kept", `{"answer":42}`, `{"answer":42}`},
		{"fenced_internal", "Result:\n```json\n{\"tool_name\":\"grep\",\"arguments\":{}}\n```\nAll good.", "Result:\n\nAll good."},
		{"fenced_code_kept", "```json\n{\"a\":1}\n```", "```json\n{\"a\":1}\n```"},
		{"array_payload", `[{"type":"tool_call","id":"x"}]`, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Sanitize(c.in))
		})
	}
}

func TestSanitizeHistory(t *testing.T) {
	in := []core.Message{
		{ID: "u1", Role: core.RoleUser, Content: "hi", Metadata: map[string]any{"attachments": []any{"big"}}},
		{ID: "t1", Role: core.RoleTool, Content: "tool output", ToolCallID: "c1"},
		{ID: "a1", Role: core.RoleAssistant, Content: `{"tool_call_id":"c1"}`},
		{ID: "a2", Role: core.RoleAssistant, Content: "answer ![img](data:image/png;base64,xx)", Metadata: map[string]any{"artifacts": 1}},
	}
	out := SanitizeHistory(in)
	require.Len(t, out, 2)
	assert.Equal(t, core.Message{ID: "u1", Role: core.RoleUser, Content: "hi"}, out[0])
	assert.Equal(t, core.Message{ID: "a2", Role: core.RoleAssistant, Content: "answer"}, out[1])
	assert.NotNil(t, in[0].Metadata, "input untouched")
}

func TestTranscript_SingleTrailingAssistant(t *testing.T) {
	tr := NewTranscript([]core.Message{{ID: "u1", Role: core.RoleUser, Content: "q"}})
	assert.True(t, tr.ApplyDelta("m1", "Hel"))
	assert.True(t, tr.ApplyDelta("m1", "lo"))
	assert.False(t, tr.ApplyDelta("m1", ""))

	msgs := tr.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[1].ID)
	assert.Equal(t, "Hello", msgs[1].Content)
}

func TestTranscript_RetryReplacesPartialText(t *testing.T) {
	tr := NewTranscript(nil)
	tr.ApplyDelta("m1", "partial answ")
	tr.BeginRetry()
	tr.ApplyDelta("m2", "Full ")
	tr.ApplyDelta("m2", "answer")

	msgs := tr.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID, "the assistant message keeps its id across attempts")
	assert.Equal(t, "Full answer", msgs[0].Content)
}

func TestTranscript_HidesPayloadWhileStreaming(t *testing.T) {
	tr := NewTranscript(nil)
	assert.False(t, tr.ApplyDelta("m1", `{"tool_call_id":`))
	assert.Empty(t, tr.Messages())
	assert.Equal(t, `{"tool_call_id":`, tr.RawText())
}

func TestTranscript_MetadataAndReplace(t *testing.T) {
	tr := NewTranscript(nil)
	assert.False(t, tr.SetAssistantMetadata(map[string]any{"x": 1}))
	tr.ApplyDelta("", "hi")
	assert.True(t, tr.SetAssistantMetadata(map[string]any{"x": 1}))
	a, ok := tr.Assistant()
	require.True(t, ok)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, 1, a.Metadata["x"])

	tr.Replace([]core.Message{{ID: "u", Role: core.RoleUser}, {ID: "srv", Role: core.RoleAssistant, Content: "final"}})
	a, ok = tr.Assistant()
	require.True(t, ok)
	assert.Equal(t, "srv", a.ID)
}

func TestStableID(t *testing.T) {
	a := StableID(core.RoleAssistant, "", "", 3)
	assert.Equal(t, a, StableID(core.RoleAssistant, "", "", 3))
	assert.NotEqual(t, a, StableID(core.RoleAssistant, "", "", 4))
	assert.True(t, strings.HasPrefix(a, "msg-"))
}

func TestReconcileMessages(t *testing.T) {
	created := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	local := []core.Message{
		{ID: "u1", Role: core.RoleUser, Content: "q", CreatedAt: created, Metadata: map[string]any{"attachments": []any{"a.log"}}},
		{ID: "a-local", Role: core.RoleAssistant, Content: "The full streamed answer", Metadata: map[string]any{"artifacts": []any{"x"}}},
	}

	t.Run("merges_by_id_and_prefers_streamed", func(t *testing.T) {
		incoming := []core.Message{
			{ID: "u1", Role: core.RoleUser, Content: "q"},
			{Role: core.RoleTool, Content: "noise"},
			{Role: core.RoleAssistant, Content: `{"answer": "raw"}`},
		}
		out := ReconcileMessages(local, incoming)
		require.Len(t, out, 2)
		assert.Equal(t, created, out[0].CreatedAt)
		assert.Equal(t, []any{"a.log"}, out[0].Metadata["attachments"])
		assert.Equal(t, StableID(core.RoleAssistant, "", "", 2), out[1].ID)
		assert.Equal(t, "The full streamed answer", out[1].Content)
		assert.Equal(t, []any{"x"}, out[1].Metadata["artifacts"])
	})

	t.Run("keeps_clean_final_text", func(t *testing.T) {
		incoming := []core.Message{
			{ID: "u1", Role: core.RoleUser, Content: "q"},
			{ID: "a-srv", Role: core.RoleAssistant, Content: "A different, authoritative answer"},
		}
		out := ReconcileMessages(local, incoming)
		assert.Equal(t, "A different, authoritative answer", out[1].Content)
	})

	t.Run("truncated_final_loses", func(t *testing.T) {
		incoming := []core.Message{{ID: "a-local", Role: core.RoleAssistant, Content: "The full"}}
		out := ReconcileMessages(local, incoming)
		assert.Equal(t, "The full streamed answer", out[0].Content)
	})

	t.Run("appends_missing_answer", func(t *testing.T) {
		out := ReconcileMessages(local, []core.Message{{ID: "u1", Role: core.RoleUser, Content: "q"}})
		require.Len(t, out, 2)
		assert.Equal(t, "a-local", out[1].ID)
	})

	t.Run("earlier_answer_is_not_merged_into", func(t *testing.T) {
		history := []core.Message{
			{ID: "u0", Role: core.RoleUser, Content: "first"},
			{ID: "a0", Role: core.RoleAssistant, Content: "The full"},
			{ID: "u1", Role: core.RoleUser, Content: "q"},
			{ID: "a-local", Role: core.RoleAssistant, Content: "Second answer", Metadata: map[string]any{"artifacts": []any{"x"}}},
		}
		// A stale snapshot that ends with the previous turn's answer.
		incoming := []core.Message{
			{ID: "u0", Role: core.RoleUser, Content: "first"},
			{ID: "a0", Role: core.RoleAssistant, Content: "The full"},
		}
		out := ReconcileMessages(history, incoming)
		require.Len(t, out, 3)
		assert.Equal(t, "The full", out[1].Content)
		assert.Nil(t, out[1].Metadata)
		assert.Equal(t, "a-local", out[2].ID)
		assert.Equal(t, "Second answer", out[2].Content)
		assert.Equal(t, []any{"x"}, out[2].Metadata["artifacts"])
	})

	t.Run("empty_incoming_keeps_local", func(t *testing.T) {
		out := ReconcileMessages(local, nil)
		assert.Equal(t, local, out)
	})
}

func TestPreferStreamed(t *testing.T) {
	assert.False(t, PreferStreamed("", "final"))
	assert.True(t, PreferStreamed("text", ""))
	assert.True(t, PreferStreamed("clean text", `{"raw":true}`))
	assert.True(t, PreferStreamed("abc def", "abc"))
	assert.False(t, PreferStreamed("abc", "xyz"))
}
