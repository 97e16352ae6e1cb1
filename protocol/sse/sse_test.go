package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/internal/testutil"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol"
)

func serve(t *testing.T, frames ...string) (*httptest.Server, *protocol.RunInput) {
	t.Helper()
	var got protocol.RunInput
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			_, _ = io.WriteString(w, f)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func newClient(url string) *Client {
	return New(url, func(o *Options) { o.Header.Set("X-Api-Key", "secret") })
}

func TestClient_StreamsRun(t *testing.T) {
	srv, got := serve(t,
		": keep-alive\n\n",
		testutil.SSEFrame(testutil.WireRunStarted("th", "r1")),
		testutil.SSEFrame(testutil.WireText("m1", "Hello ")),
		testutil.SSEFrame(testutil.WireText("m1", "there")),
		testutil.SSEFrame(testutil.WireCustom("tool_call_start", map[string]any{"toolCallId": "c1"})),
		testutil.SSEFrame(testutil.WireRunFinished()),
	)
	h := testutil.NewRecordingHandler()
	in := protocol.RunInput{
		ThreadID:       "th",
		RunID:          "r1",
		Messages:       []core.Message{{ID: "u1", Role: core.RoleUser, Content: "hi"}},
		ForwardedProps: map[string]any{"agent_type": "primary"},
	}

	require.NoError(t, newClient(srv.URL).Run(context.Background(), in, h))
	assert.Equal(t, "Hello there", h.Text("m1"))
	assert.Len(t, h.Customs(), 1)
	assert.Equal(t, "th", got.ThreadID)
	assert.Equal(t, "primary", got.ForwardedProps["agent_type"])
	assert.Equal(t, "hi", got.Messages[0].Content)
}

func TestClient_SkipsMalformedFrame(t *testing.T) {
	srv, _ := serve(t,
		testutil.SSEFrame(testutil.WireText("m1", "Hel")),
		"data: {not json\n\n",
		testutil.SSEFrame(testutil.WireText("m1", "lo")),
		testutil.SSEFrame(testutil.WireRunFinished()),
	)
	h := testutil.NewRecordingHandler()

	require.NoError(t, newClient(srv.URL).Run(context.Background(), protocol.RunInput{}, h))
	assert.Equal(t, "Hello", h.Text("m1"))
}

func TestClient_StreamCutOff(t *testing.T) {
	srv, _ := serve(t, testutil.SSEFrame(testutil.WireText("m1", "partial")))
	err := newClient(srv.URL).Run(context.Background(), protocol.RunInput{}, testutil.NewRecordingHandler())
	assert.ErrorIs(t, err, protocol.ErrStreamEnded)
}

func TestClient_RunError(t *testing.T) {
	srv, _ := serve(t, testutil.SSEFrame(testutil.WireRunError("boom")), testutil.SSEFrame(testutil.WireText("m1", "ignored")))
	h := testutil.NewRecordingHandler()
	err := newClient(srv.URL).Run(context.Background(), protocol.RunInput{}, h)
	var runErr *protocol.RunFailedError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "boom", runErr.Message)
	assert.Empty(t, h.Text("m1"))
}

func TestClient_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := New(srv.URL).Run(context.Background(), protocol.RunInput{}, protocol.NopHandler{})
	var statusErr *protocol.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.True(t, statusErr.Transient())
	assert.Equal(t, "upstream busy", statusErr.Body)
}

func TestClient_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, testutil.SSEFrame(testutil.WireText("m1", "x")))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := New(srv.URL).Run(ctx, protocol.RunInput{}, cancelOnText{cancel: cancel})
	assert.ErrorIs(t, err, context.Canceled)
}

type cancelOnText struct {
	protocol.NopHandler
	cancel context.CancelFunc
}

func (c cancelOnText) OnTextMessageContent(string, string) { c.cancel() }

func TestReadEvents(t *testing.T) {
	stream := "event: message\ndata: {\"a\":\ndata: 1}\n\n: comment\n\ndata: second\r\n\r\ndata: tail-without-blank-line"
	var got []string
	err := ReadEvents(strings.NewReader(stream), func(data []byte) error {
		got = append(got, string(data))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"{\"a\":\n1}", "second", "tail-without-blank-line"}, got)

	stop := fmt.Errorf("stop here")
	err = ReadEvents(strings.NewReader("data: a\n\ndata: b\n\n"), func([]byte) error { return stop })
	assert.ErrorIs(t, err, stop)
}
