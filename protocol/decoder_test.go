package protocol_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/internal/testutil"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol"
)

func feed(t *testing.T, dec *protocol.Decoder, frames ...string) {
	t.Helper()
	for _, f := range frames {
		_, err := dec.Handle(context.Background(), []byte(f))
		require.NoError(t, err, f)
	}
}

func TestDecoder_TextAndTools(t *testing.T) {
	h := testutil.NewRecordingHandler()
	dec := protocol.NewDecoder(h)

	feed(t, dec,
		testutil.WireRunStarted("th", "r1"),
		testutil.NewWire(protocol.EventTextMessageStart).Set("messageId", "m1").String(),
		testutil.WireText("m1", "Hel"),
		testutil.NewWire(protocol.EventTextMessageContent).Set("delta", "lo").String(),
		testutil.NewWire(protocol.EventTextMessageEnd).Set("messageId", "m1").String(),
		testutil.NewWire(protocol.EventToolCallStart).Set("toolCallId", "c1").Set("toolCallName", "search").Set("parentToolCallId", "p1").String(),
		testutil.NewWire(protocol.EventToolCallArgs).Set("toolCallId", "c1").Set("delta", `{"q":`).String(),
		testutil.NewWire(protocol.EventToolCallResult).Set("toolCallId", "c1").Set("content", "3 hits").String(),
		testutil.WireRunFinished(),
	)

	assert.Equal(t, "Hello", h.Text("m1"))
	require.Len(t, h.ToolStarts(), 1)
	assert.Equal(t, protocol.ToolCall{ToolCallID: "c1", ToolName: "search", ParentToolCallID: "p1"}, h.ToolStarts()[0])
	require.Len(t, h.ToolResults(), 1)
	assert.Equal(t, "3 hits", h.ToolResults()[0].Content)
	assert.True(t, dec.Finished())
	assert.NoError(t, dec.Finish())
}

func TestDecoder_SnapshotsAndCustom(t *testing.T) {
	h := testutil.NewRecordingHandler()
	h.Reply = func(name string, _ json.RawMessage) (any, error) {
		if name == "interrupt" {
			return map[string]any{"approved": true}, nil
		}
		return nil, nil
	}
	dec := protocol.NewDecoder(h)

	feed(t, dec,
		testutil.NewWire(protocol.EventStateSnapshot).Set("snapshot", map[string]any{"todos": []any{map[string]any{"id": "t1"}}}).String(),
		testutil.NewWire(protocol.EventMessagesSnapshot).Set("messages", []any{
			map[string]any{"id": "u1", "role": "user", "content": "hi"},
			map[string]any{"role": "assistant", "content": []any{map[string]any{"type": "text", "text": "yo"}}},
		}).String(),
		testutil.NewWire(protocol.EventCustom).Set("name", "agent_todos_update").Set("data.todos", []any{}).String(),
	)

	reply, err := dec.Handle(context.Background(), []byte(testutil.WireCustom("interrupt", map[string]any{"q": "ok?"})))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "interrupt", reply.Name)

	require.Len(t, h.States(), 1)
	lists := h.MessageLists()
	require.Len(t, lists, 1)
	assert.Equal(t, core.Message{ID: "u1", Role: core.RoleUser, Content: "hi"}, lists[0][0])
	assert.Equal(t, "yo", lists[0][1].Content)

	customs := h.Customs()
	require.Len(t, customs, 2)
	assert.JSONEq(t, `{"todos":[]}`, string(customs[0].Value))
}

func TestDecoder_RunError(t *testing.T) {
	h := testutil.NewRecordingHandler()
	dec := protocol.NewDecoder(h)

	_, err := dec.Handle(context.Background(), []byte(testutil.NewWire(protocol.EventRunError).Set("message", "model overloaded").Set("code", "overloaded").String()))
	var runErr *protocol.RunFailedError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, "model overloaded", runErr.Message)
	assert.Len(t, h.Failures(), 1)
	assert.True(t, dec.Done())
	assert.ErrorAs(t, dec.Finish(), &runErr)
}

func TestDecoder_StreamEndedEarly(t *testing.T) {
	dec := protocol.NewDecoder(protocol.NopHandler{})
	_, err := dec.Handle(context.Background(), []byte(testutil.WireText("m", "x")))
	require.NoError(t, err)
	assert.ErrorIs(t, dec.Finish(), protocol.ErrStreamEnded)
}

func TestDecoder_SkipsMalformedFrames(t *testing.T) {
	h := testutil.NewRecordingHandler()
	dec := protocol.NewDecoder(h)

	feed(t, dec,
		testutil.WireText("m1", "Hel"),
		"{not json",
		`"just a string"`,
		testutil.WireText("m1", "lo"),
		testutil.WireRunFinished(),
	)

	assert.Equal(t, "Hello", h.Text("m1"))
	assert.Equal(t, 2, dec.Skipped())
	assert.NoError(t, dec.Finish())
}

func TestDecoder_ToolTimestampsArgsAndErrors(t *testing.T) {
	h := testutil.NewRecordingHandler()
	dec := protocol.NewDecoder(h)

	feed(t, dec,
		testutil.NewWire(protocol.EventToolCallStart).Set("toolCallId", "c1").Set("toolCallName", "search").Set("parentToolCallId", "p1").Set("timestamp", 1700000001000).String(),
		testutil.NewWire(protocol.EventToolCallArgs).Set("toolCallId", "c1").Set("delta", `{"q":`).String(),
		testutil.NewWire(protocol.EventToolCallArgs).Set("toolCallId", "c1").Set("delta", `"logs"}`).String(),
		testutil.NewWire(protocol.EventToolCallEnd).Set("toolCallId", "c1").Set("timestamp", 1700000002000).String(),
		testutil.NewWire(protocol.EventToolCallResult).Set("toolCallId", "c1").Set("content", "3 hits").Set("timestamp", "2023-11-14T22:13:23Z").String(),
		testutil.NewWire(protocol.EventToolCallStart).Set("toolCallId", "c2").Set("toolCallName", "fetch").String(),
		testutil.NewWire(protocol.EventToolCallResult).Set("toolCallId", "c2").Set("error", map[string]any{"message": "timeout"}).String(),
	)

	starts := h.ToolStarts()
	require.Len(t, starts, 3)
	assert.Equal(t, int64(1700000001000), starts[0].Timestamp)
	assert.Empty(t, starts[0].Args)
	assert.Equal(t, `{"q":"logs"}`, starts[1].Args)
	assert.Equal(t, int64(1700000002000), starts[1].Timestamp)

	results := h.ToolResults()
	require.Len(t, results, 2)
	assert.Equal(t, int64(1700000003000), results[0].Timestamp)
	assert.Equal(t, "search", results[0].ToolName)
	assert.Equal(t, "p1", results[0].ParentToolCallID)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, "timeout", results[1].Error)
	assert.Zero(t, results[1].Timestamp)
}

func TestHTTPStatusError_Transient(t *testing.T) {
	for code, want := range map[int]bool{502: true, 503: true, 504: true, 429: true, 400: false, 401: false, 500: false} {
		assert.Equal(t, want, (&protocol.HTTPStatusError{StatusCode: code}).Transient(), code)
	}
	assert.Contains(t, (&protocol.HTTPStatusError{StatusCode: 503, Body: "busy"}).Error(), "503 Service Unavailable: busy")
}
