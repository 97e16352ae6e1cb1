package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
)

// AG-UI wire event types.
const (
	EventRunStarted         = "RUN_STARTED"
	EventRunFinished        = "RUN_FINISHED"
	EventRunError           = "RUN_ERROR"
	EventTextMessageStart   = "TEXT_MESSAGE_START"
	EventTextMessageContent = "TEXT_MESSAGE_CONTENT"
	EventTextMessageChunk   = "TEXT_MESSAGE_CHUNK"
	EventTextMessageEnd     = "TEXT_MESSAGE_END"
	EventToolCallStart      = "TOOL_CALL_START"
	EventToolCallArgs       = "TOOL_CALL_ARGS"
	EventToolCallEnd        = "TOOL_CALL_END"
	EventToolCallResult     = "TOOL_CALL_RESULT"
	EventStateSnapshot      = "STATE_SNAPSHOT"
	EventMessagesSnapshot   = "MESSAGES_SNAPSHOT"
	EventCustom             = "CUSTOM"
)

// Reply is an interrupt response produced by a custom event handler.
type Reply struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// DecoderOptions configures a Decoder.
type DecoderOptions struct {
	Logger logging.Logger
}

// Decoder feeds AG-UI wire events into a Handler. It is not safe for
// concurrent use.
type Decoder struct {
	h             Handler
	logger        logging.Logger
	currentMsgID  string
	toolCalls     map[string]*ToolCall
	finished      bool
	failed        error
	eventsHandled int
	skipped       int
}

// NewDecoder creates a decoder reporting to h.
func NewDecoder(h Handler, optFns ...func(o *DecoderOptions)) *Decoder {
	opts := DecoderOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Decoder{h: h, logger: logging.OrNoOp(opts.Logger), toolCalls: map[string]*ToolCall{}}
}

// Handle decodes one wire event. It returns a non-nil Reply when a custom
// event handler produced an interrupt response, and a *RunFailedError when
// the event is RUN_ERROR. Frames that are not JSON objects are skipped.
func (d *Decoder) Handle(ctx context.Context, raw []byte) (*Reply, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		d.skipped++
		d.logger.Warn("Skipping malformed wire event", "bytes", len(raw), "skipped", d.skipped)
		return nil, nil
	}
	ev := gjson.ParseBytes(raw)
	d.eventsHandled++

	switch ev.Get("type").String() {
	case EventRunStarted:
	case EventRunFinished:
		d.finished = true
	case EventRunError:
		payload := ev.Value()
		err := &RunFailedError{
			Message: ev.Get("message").String(),
			Code:    ev.Get("code").String(),
			Payload: payload,
		}
		d.failed = err
		d.h.OnRunFailed(err)
		return nil, err
	case EventTextMessageStart:
		d.currentMsgID = ev.Get("messageId").String()
	case EventTextMessageContent, EventTextMessageChunk:
		id := ev.Get("messageId").String()
		if id == "" {
			id = d.currentMsgID
		}
		if delta := ev.Get("delta").String(); delta != "" {
			d.h.OnTextMessageContent(id, delta)
		}
	case EventTextMessageEnd:
		d.currentMsgID = ""
	case EventToolCallStart:
		call := &ToolCall{
			ToolCallID:       ev.Get("toolCallId").String(),
			ToolName:         ev.Get("toolCallName").String(),
			ParentMessageID:  ev.Get("parentMessageId").String(),
			ParentToolCallID: ev.Get("parentToolCallId").String(),
			Timestamp:        epochMillis(ev.Get("timestamp")),
		}
		d.toolCalls[call.ToolCallID] = call
		d.h.OnToolCallStart(*call)
	case EventToolCallArgs:
		if call, ok := d.toolCalls[ev.Get("toolCallId").String()]; ok {
			call.Args += ev.Get("delta").String()
		}
	case EventToolCallEnd:
		// Re-announce the call once its arguments are complete.
		if call, ok := d.toolCalls[ev.Get("toolCallId").String()]; ok && call.Args != "" {
			if ts := epochMillis(ev.Get("timestamp")); ts > call.Timestamp {
				call.Timestamp = ts
			}
			d.h.OnToolCallStart(*call)
		}
	case EventToolCallResult:
		id := ev.Get("toolCallId").String()
		res := ToolResult{
			ToolCallID: id,
			MessageID:  ev.Get("messageId").String(),
			Content:    ev.Get("content").String(),
			Status:     ev.Get("status").String(),
			Error:      errorText(ev.Get("error")),
			Timestamp:  epochMillis(ev.Get("timestamp")),
		}
		if call, ok := d.toolCalls[id]; ok {
			res.ToolName = call.ToolName
			res.ParentToolCallID = call.ParentToolCallID
		}
		d.h.OnToolCallResult(res)
		delete(d.toolCalls, id)
	case EventStateSnapshot:
		var state map[string]any
		if snap := ev.Get("snapshot"); snap.IsObject() {
			if err := json.Unmarshal([]byte(snap.Raw), &state); err == nil {
				d.h.OnStateChanged(state)
			}
		}
	case EventMessagesSnapshot:
		d.h.OnMessagesChanged(decodeMessages(ev.Get("messages")))
	case EventCustom:
		name := ev.Get("name").String()
		value := ev.Get("value")
		if !value.Exists() {
			value = ev.Get("data")
		}
		raw := json.RawMessage("null")
		if value.Exists() {
			raw = json.RawMessage(value.Raw)
		}
		reply, err := d.h.OnCustomEvent(ctx, name, raw)
		if err != nil {
			return nil, err
		}
		if reply != nil {
			return &Reply{Name: name, Value: reply}, nil
		}
	}
	return nil, nil
}

// Skipped returns how many malformed frames were dropped.
func (d *Decoder) Skipped() int { return d.skipped }

// Finished reports whether RUN_FINISHED was seen.
func (d *Decoder) Finished() bool { return d.finished }

// Err returns the RUN_ERROR failure, if any.
func (d *Decoder) Err() error { return d.failed }

// Done reports whether the run reached a terminal event.
func (d *Decoder) Done() bool { return d.finished || d.failed != nil }

// Finish returns the error a transport should report once its stream has
// closed.
func (d *Decoder) Finish() error {
	switch {
	case d.failed != nil:
		return d.failed
	case d.finished:
		return nil
	}
	return fmt.Errorf("after %d events: %w", d.eventsHandled, ErrStreamEnded)
}

func decodeMessages(list gjson.Result) []core.Message {
	var out []core.Message
	for _, m := range list.Array() {
		msg := core.Message{
			ID:         m.Get("id").String(),
			Role:       core.Role(strings.ToLower(m.Get("role").String())),
			Name:       m.Get("name").String(),
			ToolCallID: firstString(m, "toolCallId", "tool_call_id"),
		}
		switch c := m.Get("content"); {
		case c.Type == gjson.String:
			msg.Content = c.Str
		case c.IsArray():
			var parts []string
			for _, p := range c.Array() {
				if t := p.Get("text"); t.Exists() {
					parts = append(parts, t.String())
				}
			}
			msg.Content = strings.Join(parts, "")
		}
		if meta := m.Get("metadata"); meta.IsObject() {
			_ = json.Unmarshal([]byte(meta.Raw), &msg.Metadata)
		}
		out = append(out, msg)
	}
	return out
}

func firstString(res gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := res.Get(k); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// epochMillis reads a wire timestamp: a number of epoch milliseconds or an
// RFC 3339 string. Anything else yields zero.
func epochMillis(res gjson.Result) int64 {
	switch res.Type {
	case gjson.Number:
		return res.Int()
	case gjson.String:
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(res.Str)); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

func errorText(res gjson.Result) string {
	switch {
	case !res.Exists(), res.Type == gjson.Null, res.Type == gjson.False:
		return ""
	case res.Type == gjson.String:
		return strings.TrimSpace(res.Str)
	case res.IsObject():
		if msg := firstString(res, "message", "error", "detail"); msg != "" {
			return msg
		}
	}
	return res.Raw
}
