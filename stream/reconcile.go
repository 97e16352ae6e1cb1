package stream

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
)

// StableID derives a deterministic id for a backend message that arrived
// without one.
func StableID(role core.Role, name, toolCallID string, index int) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%s|%s|%d", role, name, toolCallID, index)
	return fmt.Sprintf("msg-%016x", h.Sum64())
}

// ReconcileMessages merges the backend's authoritative list into the local
// one. Missing ids are derived with StableID, local metadata and timestamps
// are carried over by id, tool messages are dropped, and the locally
// streamed assistant text wins over a final text that is a truncated or
// raw-JSON rendering of it. An empty incoming list keeps local as is.
func ReconcileMessages(local, incoming []core.Message) []core.Message {
	if len(incoming) == 0 {
		out := make([]core.Message, len(local))
		for i, m := range local {
			out[i] = m.Clone()
		}
		return out
	}

	byID := make(map[string]core.Message, len(local))
	for _, m := range local {
		if m.ID != "" {
			byID[m.ID] = m
		}
	}

	out := make([]core.Message, 0, len(incoming))
	for i, in := range incoming {
		if in.Role == core.RoleTool {
			continue
		}
		m := in.Clone()
		if m.ID == "" {
			m.ID = StableID(m.Role, m.Name, m.ToolCallID, i)
		}
		if m.Role == core.RoleAssistant {
			m.Content = Sanitize(m.Content)
		}
		if prev, ok := byID[m.ID]; ok {
			m.Metadata = mergeMetadata(prev.Metadata, m.Metadata)
			if m.CreatedAt.IsZero() {
				m.CreatedAt = prev.CreatedAt
			}
		}
		out = append(out, m)
	}

	streamed, ok := trailingAssistant(local)
	if !ok || strings.TrimSpace(streamed.Content) == "" {
		return out
	}
	if n := len(out); n > 0 && out[n-1].Role == core.RoleAssistant && !olderThan(byID, out[n-1].ID, streamed.ID) {
		final := &out[n-1]
		if PreferStreamed(streamed.Content, final.Content) {
			final.Content = streamed.Content
		}
		if final.ID != streamed.ID {
			final.Metadata = mergeMetadata(streamed.Metadata, final.Metadata)
			if final.CreatedAt.IsZero() {
				final.CreatedAt = streamed.CreatedAt
			}
		}
		return out
	}
	// The backend list ends before this turn's answer; keep the streamed one.
	if _, known := indexOf(out, streamed.ID); !known {
		out = append(out, streamed.Clone())
	}
	return out
}

// PreferStreamed reports whether locally streamed text should replace the
// backend's final text.
func PreferStreamed(streamed, final string) bool {
	s, f := strings.TrimSpace(streamed), strings.TrimSpace(final)
	switch {
	case s == "":
		return false
	case f == "":
		return true
	case LooksLikeRawJSON(f) && !LooksLikeRawJSON(s):
		return true
	}
	return utf8.RuneCountInString(s) > utf8.RuneCountInString(f) && strings.HasPrefix(s, f)
}

// olderThan reports whether id names a local message other than the
// streamed one, i.e. an answer from an earlier turn.
func olderThan(local map[string]core.Message, id, streamedID string) bool {
	if id == streamedID {
		return false
	}
	_, ok := local[id]
	return ok
}

func trailingAssistant(msgs []core.Message) (core.Message, bool) {
	if n := len(msgs); n > 0 && msgs[n-1].Role == core.RoleAssistant {
		return msgs[n-1], true
	}
	return core.Message{}, false
}

func indexOf(msgs []core.Message, id string) (int, bool) {
	for i, m := range msgs {
		if m.ID == id {
			return i, true
		}
	}
	return -1, false
}

// mergeMetadata overlays incoming on local; keys only local knows survive.
func mergeMetadata(local, incoming map[string]any) map[string]any {
	if len(local) == 0 {
		return incoming
	}
	out := make(map[string]any, len(local)+len(incoming))
	for k, v := range local {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}
