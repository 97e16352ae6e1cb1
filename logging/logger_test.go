package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	_ Logger = (*StructuredLogger)(nil)
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = (*ZapAdapter)(nil)
	_ Logger = NoOpLogger{}
)

func newBufferLogger(level LogLevel) (*StructuredLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Output = buf
	cfg.Level = level
	return NewLogger(cfg), buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestStructuredLogger_ContextAttrs(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.WithComponent("runner").WithSession("s1", "r1").WithContext("attempt", 2).Info("hello", "k", "v")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "hello", lines[0]["msg"])
	assert.Equal(t, "runner", lines[0]["component"])
	assert.Equal(t, "s1", lines[0]["session_id"])
	assert.Equal(t, "r1", lines[0]["run_id"])
	assert.Equal(t, float64(2), lines[0]["attempt"])
	assert.Equal(t, "v", lines[0]["k"])
}

func TestStructuredLogger_WithDoesNotMutateParent(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	_ = l.WithContext("child", true)
	l.Info("parent")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	_, ok := lines[0]["child"]
	assert.False(t, ok)
}

func TestStructuredLogger_LevelFilter(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")
	l.LogFlush(3, time.Millisecond)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "w", lines[0]["msg"])
	assert.Equal(t, "e", lines[1]["msg"])
}

func TestStructuredLogger_DomainHelpers(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.LogRunAttempt(1, time.Second, nil)
	l.LogRunAttempt(2, time.Second, errors.New("boom"))
	l.LogPersist("assistant", time.Millisecond, errors.New("503"), "message_id", "m1")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "Run attempt completed", lines[0]["msg"])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
	assert.Equal(t, "ERROR", lines[2]["level"])
	assert.Equal(t, "assistant", lines[2]["message_type"])
	assert.Equal(t, "m1", lines[2]["message_id"])
}

// recorder captures messages from the plain Logger interface.
type recorder struct {
	NoOpLogger
	msgs []string
}

func (r *recorder) Debug(msg string, _ ...any) { r.msgs = append(r.msgs, "debug:"+msg) }
func (r *recorder) Warn(msg string, _ ...any)  { r.msgs = append(r.msgs, "warn:"+msg) }

func TestPackageHelpers_Structured(t *testing.T) {
	base, buf := newBufferLogger(LogLevelDebug)
	l := Component(base, "persist")

	Persist(l, "user", time.Millisecond, nil, "message_id", "m1", "persisted_id", "p1")
	Flush(l, 4, time.Millisecond)
	RunAttempt(l, 2, time.Second, errors.New("reset"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "Message persisted", lines[0]["msg"])
	assert.Equal(t, "persist", lines[0]["component"])
	assert.Equal(t, "p1", lines[0]["persisted_id"])
	assert.Equal(t, "Event batch flushed", lines[1]["msg"])
	assert.EqualValues(t, 4, lines[1]["event_count"])
	assert.Equal(t, "Run attempt failed", lines[2]["msg"])
}

func TestPackageHelpers_PlainLogger(t *testing.T) {
	r := &recorder{}
	assert.Same(t, r, Component(r, "dispatch"))
	assert.Equal(t, NoOpLogger{}, Component(nil, "dispatch"))

	Persist(r, "assistant", time.Millisecond, errors.New("503"))
	Persist(r, "assistant", time.Millisecond, nil)
	Flush(r, 1, time.Millisecond)
	RunAttempt(r, 1, time.Second, nil)

	assert.Equal(t, []string{
		"warn:Message persistence failed",
		"debug:Message persisted",
		"debug:Event batch flushed",
		"debug:Run attempt completed",
	}, r.msgs)
}

func TestArgsToAttrs_DanglingValue(t *testing.T) {
	attrs := argsToAttrs([]any{"a", 1, "b"})
	require.Len(t, attrs, 2)
	assert.Equal(t, "a", attrs[0].Key)
	assert.Equal(t, "arg", attrs[1].Key)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("ERROR"))
	assert.Equal(t, LogLevelInfo, ParseLevel("nonsense"))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestZapAdapter_KeyValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	z := NewZapAdapter(zap.New(core))
	z.Info("persisted", "message_id", "m1")
	z.Debug("flushed")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "persisted", entries[0].Message)
	assert.Equal(t, "m1", entries[0].ContextMap()["message_id"])
}

func TestOrNoOp(t *testing.T) {
	assert.IsType(t, NoOpLogger{}, OrNoOp(nil))
	l, _ := newBufferLogger(LogLevelInfo)
	assert.Same(t, l, OrNoOp(l))
}
