package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/moonshubh/Agent-Sparrow-sub001/artifact"
	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/internal/testutil"
	"github.com/moonshubh/Agent-Sparrow-sub001/panel"
	"github.com/moonshubh/Agent-Sparrow-sub001/persist"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol"
	"github.com/moonshubh/Agent-Sparrow-sub001/retry"
	"github.com/moonshubh/Agent-Sparrow-sub001/session"
	"github.com/moonshubh/Agent-Sparrow-sub001/steering"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sleeper records backoff delays without waiting.
type sleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type fixture struct {
	runner    *Runner
	store     *session.InMemoryStore
	artifacts *artifact.InMemoryStore
	sleeper   *sleeper
}

func newFixture(t *testing.T, agent protocol.Agent, optFns ...func(o *Options)) *fixture {
	t.Helper()
	f := &fixture{
		store:     session.NewInMemoryStore(),
		artifacts: artifact.NewInMemoryStore(),
		sleeper:   &sleeper{},
	}
	fns := append([]func(o *Options){func(o *Options) {
		o.SessionID = "s1"
		o.Store = f.store
		o.Artifacts = f.artifacts
		o.Sleep = f.sleeper.Sleep
		o.BatchWindow = time.Millisecond
	}}, optFns...)
	f.runner = New(agent, fns...)
	t.Cleanup(f.runner.Close)
	return f
}

func (f *fixture) stored(t *testing.T) []core.StoredMessage {
	t.Helper()
	msgs, err := f.store.ListMessages(context.Background(), "s1", 0, 0)
	require.NoError(t, err)
	return msgs
}

// startBlocked runs SendMessage in the background until the script reaches
// its Signal step.
func startBlocked(t *testing.T, r *Runner, content string, started <-chan struct{}) <-chan *TurnResult {
	t.Helper()
	out := make(chan *TurnResult, 1)
	go func() {
		res, err := r.SendMessage(context.Background(), Input{Content: content})
		if err != nil {
			t.Errorf("SendMessage: %v", err)
		}
		out <- res
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
	}
	return out
}

func objectiveHint(id, title string) map[string]any {
	return testutil.NewPayload().Objective(id).Lane("primary").Title(title).Status("running").
		Set("phase", "execute").Build()
}

func TestSendMessage_StreamsAndPersists(t *testing.T) {
	agent := testutil.NewScriptedAgent(
		testutil.NewScript().
			Custom("objective_hint_update", objectiveHint("obj-1", "Check sync settings")).
			Text("a1", "Hel", "lo").
			Build(),
	)
	f := newFixture(t, agent)

	res, err := f.runner.SendMessage(context.Background(), Input{Content: "why does sync fail?"})
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Empty(t, res.Error)
	require.NotNil(t, res.Assistant)
	assert.Equal(t, "Hello", res.Assistant.Content)
	assert.Equal(t, 1, res.Recovery.AttemptsUsed)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, core.RoleUser, res.Messages[0].Role)

	stored := f.stored(t)
	require.Len(t, stored, 2)
	assert.Equal(t, "user", stored[0].MessageType)
	assert.Equal(t, "Hello", stored[1].Content)
	assert.Equal(t, "primary", stored[1].AgentType)
	assert.Equal(t, stored[1].ID, res.PersistedID)

	id, ok := f.runner.PersistedID("a1")
	require.True(t, ok)
	assert.Equal(t, res.PersistedID, id)

	in := agent.LastInput()
	assert.Equal(t, "s1", in.ThreadID)
	assert.Equal(t, "s1", in.ForwardedProps[PropSessionID])
	assert.Equal(t, "primary", in.ForwardedProps[PropAgentType])

	snap := f.runner.Snapshot()
	assert.Equal(t, StateDone, snap.State)
	obj, ok := snap.Panel.Objective("obj-1")
	require.True(t, ok)
	assert.Equal(t, core.StatusUnknown, obj.Status)
}

func TestSendMessage_Empty(t *testing.T) {
	f := newFixture(t, testutil.NewScriptedAgent())

	_, err := f.runner.SendMessage(context.Background(), Input{Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendMessage_RetryExhaustion(t *testing.T) {
	agent := testutil.NewScriptedAgent(
		testutil.NewScript().
			Text("a1", "partial").
			Custom("tool_call_start", map[string]any{"toolCallId": "c1", "toolName": "search"}).
			Fail(io.ErrUnexpectedEOF).
			Build(),
	)
	f := newFixture(t, agent)

	res, err := f.runner.SendMessage(context.Background(), Input{Content: "find the logs"})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{2500 * time.Millisecond, 5000 * time.Millisecond, 7500 * time.Millisecond}, f.sleeper.Delays())
	assert.Equal(t, 4, agent.Calls())
	assert.Equal(t, StateError, res.State)
	assert.Contains(t, res.Error, "Partial output")
	assert.Equal(t, core.StreamRecovery{AttemptsUsed: 4, Exhausted: true, Incomplete: true}, res.Recovery)
	assert.Equal(t, core.StatusUnknown, res.Panel.RunStatus)

	// Streamed text survives and retries replace rather than append it.
	require.NotNil(t, res.Assistant)
	assert.Equal(t, "partial", res.Assistant.Content)

	inputs := agent.Inputs()
	for i := 1; i < len(inputs); i++ {
		assert.Equal(t, inputs[0].ForwardedProps, inputs[i].ForwardedProps)
		assert.Equal(t, inputs[0].RunID, inputs[i].RunID)
	}

	snap := f.runner.Snapshot()
	assert.True(t, snap.Recovery.Exhausted)
	assert.False(t, snap.Recovery.IsRetrying)
	assert.Equal(t, retry.ExhaustedMessage, snap.Error)
}

func TestSendMessage_RetryRecovers(t *testing.T) {
	agent := testutil.NewScriptedAgent(
		testutil.NewScript().Text("a1", "Hel").Fail(protocol.ErrStreamEnded).Build(),
		testutil.NewScript().Text("a1", "Hello again").Build(),
	)
	f := newFixture(t, agent)

	res, err := f.runner.SendMessage(context.Background(), Input{Content: "hi"})
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []time.Duration{2500 * time.Millisecond}, f.sleeper.Delays())
	assert.Equal(t, 2, res.Recovery.AttemptsUsed)
	assert.Equal(t, "Hello again", res.Assistant.Content)

	stored := f.stored(t)
	require.Len(t, stored, 2)
	assert.Equal(t, "Hello again", stored[1].Content)
}

func TestSendMessage_FatalErrors(t *testing.T) {
	tests := []struct {
		name string
		step *testutil.ScriptBuilder
		want string
	}{
		{
			name: "backend",
			step: testutil.NewScript().RunFailed(&protocol.RunFailedError{Message: "quota", Payload: map[string]any{"message": "quota exceeded"}}),
			want: "quota exceeded",
		},
		{
			name: "token_limit",
			step: testutil.NewScript().Fail(errors.New("context_length_exceeded: maximum context length is 128k")),
			want: retry.TokenLimitMessage,
		},
		{
			name: "fatal",
			step: testutil.NewScript().Fail(errors.New("boom")),
			want: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := testutil.NewScriptedAgent(tt.step.Build())
			f := newFixture(t, agent)

			res, err := f.runner.SendMessage(context.Background(), Input{Content: "hi"})
			require.NoError(t, err)
			assert.Equal(t, StateError, res.State)
			assert.Equal(t, tt.want, res.Error)
			assert.Equal(t, 1, agent.Calls())
			assert.Empty(t, f.sleeper.Delays())
			assert.False(t, res.Recovery.Exhausted)
		})
	}
}

func TestSendMessage_TurnInFlightAndAbort(t *testing.T) {
	started := make(chan struct{})
	agent := testutil.NewScriptedAgent(
		testutil.NewScript().Text("a1", "working").Signal(started).Block().Build(),
	)
	f := newFixture(t, agent)

	done := startBlocked(t, f.runner, "long task", started)

	_, err := f.runner.SendMessage(context.Background(), Input{Content: "again"})
	assert.ErrorIs(t, err, ErrTurnInFlight)
	assert.Equal(t, StateStreaming, f.runner.Snapshot().State)

	f.runner.Abort()
	res := <-done
	require.NotNil(t, res)
	assert.Equal(t, StateAborted, res.State)
	assert.Empty(t, res.Error)
	assert.Equal(t, 1, agent.Calls())

	// Partial text is still persisted once.
	stored := f.stored(t)
	require.Len(t, stored, 2)
	assert.Equal(t, "working", stored[1].Content)
}

func TestSubmit_NoRunSendsDirectly(t *testing.T) {
	agent := testutil.NewScriptedAgent(testutil.NewScript().Text("a1", "ok").Build())
	f := newFixture(t, agent)

	res, err := f.runner.Submit(context.Background(), Input{Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.NotContains(t, agent.LastInput().ForwardedProps, steering.ContextKey)
}

func TestSubmit_Steering(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{name: "continue", message: "continue timeout retry logic now", want: true},
		{name: "unrelated", message: "different topic: summarize deployment", want: false},
		{name: "no_overlap", message: "what is the weather", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			started := make(chan struct{})
			agent := testutil.NewScriptedAgent(
				testutil.NewScript().
					Custom("objective_hint_update", objectiveHint("obj-1", "Investigate timeout retry logic")).
					Signal(started).
					Block().
					Build(),
				testutil.NewScript().Text("a2", "on it").Build(),
			)
			f := newFixture(t, agent)
			first := startBlocked(t, f.runner, "investigate the timeouts", started)

			res, err := f.runner.Submit(context.Background(), Input{Content: tt.message})
			require.NoError(t, err)
			assert.Equal(t, StateDone, res.State)
			assert.Equal(t, StateAborted, (<-first).State)
			require.Equal(t, 2, agent.Calls())

			props := agent.LastInput().ForwardedProps
			if !tt.want {
				assert.NotContains(t, props, steering.ContextKey)
				return
			}
			ctxVal, ok := props[steering.ContextKey].(map[string]any)
			require.True(t, ok, "overlap context missing: %v", props)
			assert.Equal(t, "obj-1", ctxVal["objective_id"])
			assert.Equal(t, "primary", ctxVal["lane_id"])
			assert.Equal(t, "Investigate timeout retry logic", ctxVal["title"])
			assert.InDelta(t, 0.75, ctxVal["score"], 0.001)
			assert.NotEmpty(t, ctxVal["prompt"])
		})
	}
}

func TestSubmit_AmbiguousResolved(t *testing.T) {
	started := make(chan struct{})
	agent := testutil.NewScriptedAgent(
		testutil.NewScript().
			Custom("objective_hint_update", objectiveHint("obj-1", "Investigate timeout retry logic")).
			Signal(started).
			Block().
			Build(),
		testutil.NewScript().Text("a2", "ok").Build(),
	)
	f := newFixture(t, agent)
	first := startBlocked(t, f.runner, "investigate", started)

	out := make(chan *TurnResult, 1)
	go func() {
		res, err := f.runner.Submit(context.Background(), Input{Content: "timeout please"})
		if err != nil {
			t.Errorf("Submit: %v", err)
		}
		out <- res
	}()

	require.Eventually(t, func() bool { return f.runner.Snapshot().SteeringPending() }, 2*time.Second, time.Millisecond)
	pending := f.runner.Snapshot().Steering
	assert.Equal(t, "timeout please", pending.Message)
	assert.Equal(t, "obj-1", pending.Objective.ID)

	require.NoError(t, f.runner.ResolveSteering(true))
	res := <-out
	<-first
	require.NotNil(t, res)
	assert.Contains(t, agent.LastInput().ForwardedProps, steering.ContextKey)
	assert.False(t, f.runner.Snapshot().SteeringPending())
	assert.ErrorIs(t, f.runner.ResolveSteering(true), ErrNoSteering)
}

func TestSubmit_AmbiguousTimesOut(t *testing.T) {
	started := make(chan struct{})
	agent := testutil.NewScriptedAgent(
		testutil.NewScript().
			Custom("objective_hint_update", objectiveHint("obj-1", "Investigate timeout retry logic")).
			Signal(started).
			Block().
			Build(),
		testutil.NewScript().Text("a2", "ok").Build(),
	)
	f := newFixture(t, agent, func(o *Options) {
		o.Steerer = steering.New(func(o *steering.Options) { o.Window = 10 * time.Millisecond })
	})
	first := startBlocked(t, f.runner, "investigate", started)

	res, err := f.runner.Submit(context.Background(), Input{Content: "timeout please"})
	require.NoError(t, err)
	<-first
	assert.Equal(t, StateDone, res.State)
	assert.NotContains(t, agent.LastInput().ForwardedProps, steering.ContextKey)
}

func TestSendMessage_Interrupt(t *testing.T) {
	replies := make(chan any, 1)
	agent := testutil.NewScriptedAgent([]testutil.Step{
		func(ctx context.Context, h protocol.Handler) error {
			resp, err := h.OnCustomEvent(ctx, EventHumanInputRequired, json.RawMessage(`{"question":"Restart the service?"}`))
			replies <- resp
			return err
		},
		func(_ context.Context, h protocol.Handler) error {
			h.OnTextMessageContent("a1", "Restarted.")
			return nil
		},
	})
	f := newFixture(t, agent)

	assert.ErrorIs(t, f.runner.ResolveInterrupt("nothing"), ErrNoInterrupt)

	out := make(chan *TurnResult, 1)
	go func() {
		res, _ := f.runner.SendMessage(context.Background(), Input{Content: "fix it"})
		out <- res
	}()

	require.Eventually(t, func() bool { return f.runner.Snapshot().Interrupt != nil }, 2*time.Second, time.Millisecond)
	pending := f.runner.Snapshot().Interrupt
	assert.Equal(t, EventHumanInputRequired, pending.Name)
	assert.JSONEq(t, `{"question":"Restart the service?"}`, string(pending.Value))

	require.NoError(t, f.runner.ResolveInterrupt("yes"))
	assert.Equal(t, "yes", <-replies)

	res := <-out
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "Restarted.", res.Assistant.Content)
	assert.Nil(t, f.runner.Snapshot().Interrupt)
}

func TestSendMessage_InterruptAborted(t *testing.T) {
	agent := testutil.NewScriptedAgent(
		testutil.NewScript().Custom(EventInterrupt, map[string]any{"reason": "approve"}).Build(),
	)
	f := newFixture(t, agent)

	out := make(chan *TurnResult, 1)
	go func() {
		res, _ := f.runner.SendMessage(context.Background(), Input{Content: "deploy"})
		out <- res
	}()
	require.Eventually(t, func() bool { return f.runner.Snapshot().Interrupt != nil }, 2*time.Second, time.Millisecond)

	f.runner.Abort()
	res := <-out
	assert.Equal(t, StateAborted, res.State)
	assert.Nil(t, f.runner.Snapshot().Interrupt)
}

func TestSendMessage_ArtifactsAndNotesPlaceholder(t *testing.T) {
	agent := testutil.NewScriptedAgent(
		testutil.NewScript().
			Custom(EventImageArtifact, map[string]any{"id": "img-1", "title": "Diagram", "imageData": "data:image/png;base64,AAAA"}).
			Custom(EventImageArtifact, map[string]any{"id": "img-1", "title": "Diagram", "imageData": "data:image/png;base64,AAAA"}).
			Custom(EventLogAnalysisNotes, map[string]any{"file": "a.log", "notes": "disk full"}).
			Build(),
	)
	f := newFixture(t, agent)

	res, err := f.runner.SendMessage(context.Background(), Input{Content: "draw it"})
	require.NoError(t, err)

	require.NotNil(t, res.Assistant)
	assert.Contains(t, res.Assistant.Content, "Created artifact: Diagram.")
	assert.Contains(t, res.Assistant.Content, "Analysis notes recorded for: a.log.")
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, res.Assistant.ID, res.Artifacts[0].MessageID)
	assert.Equal(t, map[string]string{"a.log": "disk full"}, res.Notes)

	cur, ok := f.artifacts.Current()
	require.True(t, ok)
	assert.Equal(t, "img-1", cur.ID)
	assert.True(t, f.artifacts.Visible())

	stored := f.stored(t)
	require.Len(t, stored, 2)
	assert.Equal(t, res.Assistant.Content, stored[1].Content)
	arts := persist.ArtifactsFrom(stored[1].Metadata)
	require.Len(t, arts, 1)
	assert.Equal(t, "Diagram", arts[0].Title)
	assert.Contains(t, stored[1].Metadata, persist.KeyAnalysisNotes)
}

func TestSendMessage_ReconcilesFinalList(t *testing.T) {
	var (
		mu     sync.Mutex
		inputs []protocol.RunInput
	)
	agent := protocol.AgentFunc(func(ctx context.Context, in protocol.RunInput, h protocol.Handler) error {
		mu.Lock()
		inputs = append(inputs, in)
		mu.Unlock()

		id := "a-" + in.RunID
		h.OnTextMessageContent(id, "Hello there, friend")
		final := append(append([]core.Message(nil), in.Messages...),
			core.Message{ID: id, Role: core.RoleAssistant, Content: "Hello there"},
			core.Message{Role: core.RoleTool, Content: `{"ok":true}`})
		// Duplicate terminal snapshots must not cause a second write.
		h.OnMessagesChanged(final)
		h.OnMessagesChanged(final)
		return nil
	})
	f := newFixture(t, agent)

	res, err := f.runner.SendMessage(context.Background(), Input{Content: "greet me"})
	require.NoError(t, err)

	require.Len(t, res.Messages, 2)
	assert.Equal(t, "Hello there, friend", res.Messages[1].Content)
	assert.Len(t, f.stored(t), 2)

	_, err = f.runner.SendMessage(context.Background(), Input{Content: "again"})
	require.NoError(t, err)
	assert.Len(t, f.stored(t), 4)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, inputs, 2)
	history := inputs[1].Messages
	require.Len(t, history, 3)
	assert.Equal(t, core.RoleAssistant, history[1].Role)
	assert.Nil(t, history[1].Metadata)
	assert.Equal(t, "again", history[2].Content)
}

func TestSendMessage_WireToolResultsOrderedByTimestamp(t *testing.T) {
	agent := protocol.AgentFunc(func(ctx context.Context, _ protocol.RunInput, h protocol.Handler) error {
		dec := protocol.NewDecoder(h)
		frames := []string{
			testutil.NewWire(protocol.EventToolCallStart).Set("toolCallId", "c1").Set("toolCallName", "search").Set("timestamp", 1700000001000).String(),
			testutil.NewWire(protocol.EventToolCallResult).Set("toolCallId", "c1").Set("content", "final answer").Set("timestamp", 1700000003000).String(),
			testutil.NewWire(protocol.EventToolCallResult).Set("toolCallId", "c1").Set("content", "stale partial").Set("timestamp", 1700000002000).String(),
			testutil.NewWire(protocol.EventToolCallStart).Set("toolCallId", "c2").Set("toolCallName", "fetch").Set("timestamp", 1700000001000).String(),
			testutil.NewWire(protocol.EventToolCallResult).Set("toolCallId", "c2").Set("error", "upstream timeout").Set("timestamp", 1700000004000).String(),
			testutil.WireText("a1", "Done."),
			testutil.WireRunFinished(),
		}
		for _, f := range frames {
			if _, err := dec.Handle(ctx, []byte(f)); err != nil {
				return err
			}
		}
		return dec.Finish()
	})
	f := newFixture(t, agent)

	res, err := f.runner.SendMessage(context.Background(), Input{Content: "search the docs"})
	require.NoError(t, err)

	c1, ok := res.Panel.Objective(panel.ToolObjectiveID("c1"))
	require.True(t, ok)
	assert.Equal(t, "final answer", c1.Summary)
	assert.Equal(t, core.StatusDone, c1.Status)

	c2, ok := res.Panel.Objective(panel.ToolObjectiveID("c2"))
	require.True(t, ok)
	assert.Equal(t, core.StatusError, c2.Status)
	assert.Equal(t, "upstream timeout", c2.Summary)
}

func TestSendMessage_InfersLogAnalysis(t *testing.T) {
	agent := testutil.NewScriptedAgent(testutil.NewScript().Text("a1", "Looking.").Build())
	f := newFixture(t, agent)

	res, err := f.runner.SendMessage(context.Background(), Input{
		Content:     "what happened here?",
		Attachments: []core.Attachment{{Name: "server.log", MimeType: "text/plain", DataURL: "data:text/plain;base64,eA=="}},
	})
	require.NoError(t, err)
	assert.Equal(t, AgentTypeLogAnalysis, res.AgentType)
	assert.Equal(t, AgentTypeLogAnalysis, agent.LastInput().ForwardedProps[PropAgentType])

	stored := f.stored(t)
	require.Len(t, stored, 2)
	assert.Equal(t, AgentTypeLogAnalysis, stored[0].AgentType)
	atts := persist.AttachmentsFrom(stored[0].Metadata)
	require.Len(t, atts, 1)
	assert.Equal(t, "server.log", atts[0].Name)
}

func TestLoadSessionAndAttachArtifact(t *testing.T) {
	f := newFixture(t, testutil.NewScriptedAgent())
	ctx := context.Background()

	_, err := f.store.PostMessage(ctx, "s2", core.PostMessageRequest{MessageType: "user", Content: "draw"})
	require.NoError(t, err)
	resp, err := f.store.PostMessage(ctx, "s2", core.PostMessageRequest{
		MessageType: "assistant",
		Content:     "Created artifact: Chart.",
		Metadata: persist.Metadata{Artifacts: []core.Artifact{
			{ID: "art-1", Type: core.ArtifactImage, Title: "Chart", ImageData: "data:image/png;base64,AAAA"},
		}}.Build(),
	})
	require.NoError(t, err)

	require.NoError(t, f.runner.LoadSession(ctx, "s2"))

	snap := f.runner.Snapshot()
	assert.Equal(t, "s2", snap.SessionID)
	assert.Equal(t, StateIdle, snap.State)
	require.Len(t, snap.Messages, 2)

	id, ok := f.runner.PersistedID(resp.ID)
	require.True(t, ok)
	assert.Equal(t, resp.ID, id)

	art, err := f.artifacts.Get("art-1")
	require.NoError(t, err)
	assert.Equal(t, resp.ID, art.MessageID)

	require.NoError(t, f.runner.AttachArtifact(ctx, core.Artifact{ID: "art-2", Type: core.ArtifactArticle, Title: "Report", Content: "# Report"}))

	msgs, err := f.store.ListMessages(ctx, "s2", 0, 0)
	require.NoError(t, err)
	arts := persist.ArtifactsFrom(msgs[1].Metadata)
	require.Len(t, arts, 2)
	assert.Equal(t, "art-2", arts[1].ID)
	assert.Equal(t, resp.ID, arts[1].MessageID)

	assert.ErrorIs(t, f.runner.LoadSession(ctx, ""), session.ErrInvalidSession)
}

func TestAttachArtifact_NoAssistant(t *testing.T) {
	f := newFixture(t, testutil.NewScriptedAgent())
	err := f.runner.AttachArtifact(context.Background(), core.Artifact{Type: core.ArtifactImage, URL: "https://x/y.png"})
	assert.ErrorIs(t, err, ErrNoAssistant)
}

func TestAttachArtifact_LeavesEarlierResultsUntouched(t *testing.T) {
	f := newFixture(t, testutil.NewScriptedAgent(testutil.NewScript().Text("a1", "Here you go.").Build()))
	ctx := context.Background()

	res, err := f.runner.SendMessage(ctx, Input{Content: "draw a chart"})
	require.NoError(t, err)
	before := f.runner.Snapshot()
	last := len(res.Messages) - 1
	require.Equal(t, core.RoleAssistant, res.Messages[last].Role)
	keys := len(res.Messages[last].Metadata)

	require.NoError(t, f.runner.AttachArtifact(ctx, core.Artifact{ID: "late", Type: core.ArtifactArticle, Title: "Late", Content: "body"}))

	assert.Len(t, res.Messages[last].Metadata, keys)
	assert.Len(t, res.Assistant.Metadata, keys)
	assert.Len(t, before.Messages[last].Metadata, keys)

	after := f.runner.Snapshot()
	arts := persist.ArtifactsFrom(after.Messages[last].Metadata)
	require.Len(t, arts, 1)
	assert.Equal(t, "late", arts[0].ID)
}

func TestNewSession(t *testing.T) {
	f := newFixture(t, testutil.NewScriptedAgent(testutil.NewScript().Text("a1", "hi").Build()))
	_, err := f.runner.SendMessage(context.Background(), Input{Content: "hello"})
	require.NoError(t, err)

	id, err := f.runner.NewSession()
	require.NoError(t, err)
	snap := f.runner.Snapshot()
	assert.Equal(t, id, snap.SessionID)
	assert.Empty(t, snap.Messages)
	assert.Equal(t, StateIdle, snap.State)
}

func TestSubscribe(t *testing.T) {
	agent := testutil.NewScriptedAgent(testutil.NewScript().Text("a1", "Hel", "lo").Build())
	f := newFixture(t, agent)

	var (
		mu     sync.Mutex
		states []State
	)
	unsubscribe := f.runner.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s.State)
	})

	_, err := f.runner.SendMessage(context.Background(), Input{Content: "hi"})
	require.NoError(t, err)
	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, StateSending)
	assert.Contains(t, states, StateStreaming)
	assert.Equal(t, StateDone, states[len(states)-1])
}
