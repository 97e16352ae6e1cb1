package stream

import (
	"github.com/moonshubh/Agent-Sparrow-sub001/core"
)

// Transcript is the message list of one turn. Streamed deltas accumulate
// into a single trailing assistant message that is replaced in place. A
// Transcript is owned by one goroutine.
type Transcript struct {
	messages    []core.Message
	assistantID string
	raw         string
	replaceNext bool
}

// NewTranscript starts from a copy of history.
func NewTranscript(history []core.Message) *Transcript {
	t := &Transcript{}
	for _, m := range history {
		t.messages = append(t.messages, m.Clone())
	}
	return t
}

// Append adds a message at the end.
func (t *Transcript) Append(m core.Message) {
	t.messages = append(t.messages, m.Clone())
}

// BeginRetry makes the next delta replace the partial text streamed by the
// failed attempt instead of appending to it.
func (t *Transcript) BeginRetry() {
	t.replaceNext = true
}

// ApplyDelta appends delta to the streaming assistant message and reports
// whether the visible text changed. messageID is used only when the
// assistant message is created.
func (t *Transcript) ApplyDelta(messageID, delta string) bool {
	if t.replaceNext {
		t.raw = ""
		t.replaceNext = false
	}
	t.raw += delta
	visible := Sanitize(t.raw)

	if i := t.assistantIndex(); i >= 0 {
		if t.messages[i].Content == visible {
			return false
		}
		t.messages[i].Content = visible
		return true
	}
	if visible == "" {
		return false
	}
	m := core.NewAssistantMessage(messageID, visible)
	t.assistantID = m.ID
	t.messages = append(t.messages, m)
	return true
}

// assistantIndex locates the streaming assistant message if it is still the
// trailing message.
func (t *Transcript) assistantIndex() int {
	if t.assistantID == "" || len(t.messages) == 0 {
		return -1
	}
	last := len(t.messages) - 1
	if t.messages[last].ID == t.assistantID && t.messages[last].Role == core.RoleAssistant {
		return last
	}
	return -1
}

// Messages returns a copy of the current list.
func (t *Transcript) Messages() []core.Message {
	out := make([]core.Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.Clone()
	}
	return out
}

// Replace swaps in an authoritative list. The trailing assistant message, if
// any, becomes the streaming target.
func (t *Transcript) Replace(msgs []core.Message) {
	t.messages = make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		t.messages = append(t.messages, m.Clone())
	}
	t.assistantID = ""
	if n := len(t.messages); n > 0 && t.messages[n-1].Role == core.RoleAssistant {
		t.assistantID = t.messages[n-1].ID
	}
}

// Assistant returns the trailing streaming assistant message.
func (t *Transcript) Assistant() (core.Message, bool) {
	if i := t.assistantIndex(); i >= 0 {
		return t.messages[i].Clone(), true
	}
	return core.Message{}, false
}

// SetAssistantMetadata merges meta into the streaming assistant message.
func (t *Transcript) SetAssistantMetadata(meta map[string]any) bool {
	i := t.assistantIndex()
	if i < 0 || len(meta) == 0 {
		return false
	}
	if t.messages[i].Metadata == nil {
		t.messages[i].Metadata = map[string]any{}
	}
	for k, v := range meta {
		t.messages[i].Metadata[k] = v
	}
	return true
}

// RawText returns the unsanitised text streamed so far.
func (t *Transcript) RawText() string { return t.raw }
