package stream

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
)

var (
	dataURIImage = regexp.MustCompile(`!\[[^\]]*\]\(data:image/[^)]+\)`)
	fencedBlock  = regexp.MustCompile("(?s)```(?:json)?[ \t]*\n?(.*?)```")
	blankRun     = regexp.MustCompile(`\n{3,}`)
)

// internalKeys mark a JSON document as backend plumbing rather than prose.
var internalKeys = []string{
	"tool_call_id",
	"toolCallId",
	"tool_calls",
	"function_call",
	"tool_name",
	"arguments",
}

// Sanitize strips inline data-URI images and backend-internal tool payloads
// from assistant text.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	out := dataURIImage.ReplaceAllString(s, "")
	out = fencedBlock.ReplaceAllStringFunc(out, func(block string) string {
		m := fencedBlock.FindStringSubmatch(block)
		if len(m) == 2 && IsInternalPayload(m[1]) {
			return ""
		}
		return block
	})
	if IsInternalPayload(out) {
		return ""
	}
	out = blankRun.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// IsInternalPayload reports whether s is a tool-call payload. Complete JSON
// is inspected structurally; an unfinished document that is still streaming
// is matched on its keys.
func IsInternalPayload(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	if !gjson.Valid(s) {
		for _, k := range internalKeys {
			if strings.Contains(s, `"`+k+`"`) {
				return true
			}
		}
		return false
	}
	doc := gjson.Parse(s)
	if doc.IsArray() {
		items := doc.Array()
		if len(items) == 0 {
			return false
		}
		doc = items[0]
	}
	if !doc.IsObject() {
		return false
	}
	for _, k := range internalKeys {
		if doc.Get(k).Exists() {
			return true
		}
	}
	switch doc.Get("type").String() {
	case "tool_call", "tool_result", "function", "function_call":
		return true
	}
	return false
}

// LooksLikeRawJSON reports whether s is a complete JSON object or array.
func LooksLikeRawJSON(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return gjson.Valid(s)
}

// SanitizeHistory prepares prior messages for resending to the agent. Tool
// messages and metadata are dropped and assistant text is sanitised.
func SanitizeHistory(msgs []core.Message) []core.Message {
	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == core.RoleTool {
			continue
		}
		content := m.Content
		if m.Role == core.RoleAssistant {
			content = Sanitize(content)
			if content == "" {
				continue
			}
		}
		out = append(out, core.Message{ID: m.ID, Role: m.Role, Content: content, Name: m.Name})
	}
	return out
}
