package testutil

import (
	"github.com/tidwall/sjson"
)

// WireBuilder assembles one AG-UI wire event as JSON.
// Example:
//
//	frame := NewWire("TEXT_MESSAGE_CONTENT").Set("messageId", "m1").Set("delta", "hi").String()
type WireBuilder struct {
	raw string
}

// NewWire starts an event of the given type.
func NewWire(eventType string) *WireBuilder {
	raw, _ := sjson.Set(`{}`, "type", eventType)
	return &WireBuilder{raw: raw}
}

// Set sets path to value (chainable). Paths follow sjson syntax.
func (w *WireBuilder) Set(path string, value any) *WireBuilder {
	if raw, err := sjson.Set(w.raw, path, value); err == nil {
		w.raw = raw
	}
	return w
}

// String returns the encoded event.
func (w *WireBuilder) String() string { return w.raw }

// Bytes returns the encoded event.
func (w *WireBuilder) Bytes() []byte { return []byte(w.raw) }

// WireText is a TEXT_MESSAGE_CONTENT frame.
func WireText(messageID, delta string) string {
	return NewWire("TEXT_MESSAGE_CONTENT").Set("messageId", messageID).Set("delta", delta).String()
}

// WireCustom is a CUSTOM frame.
func WireCustom(name string, value any) string {
	return NewWire("CUSTOM").Set("name", name).Set("value", value).String()
}

// WireRunStarted is a RUN_STARTED frame.
func WireRunStarted(threadID, runID string) string {
	return NewWire("RUN_STARTED").Set("threadId", threadID).Set("runId", runID).String()
}

// WireRunFinished is a RUN_FINISHED frame.
func WireRunFinished() string { return NewWire("RUN_FINISHED").String() }

// WireRunError is a RUN_ERROR frame.
func WireRunError(message string) string {
	return NewWire("RUN_ERROR").Set("message", message).String()
}

// SSEFrame wraps an event as a text/event-stream frame.
func SSEFrame(data string) string { return "data: " + data + "\n\n" }
