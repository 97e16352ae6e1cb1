package persist

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/internal/util"
)

// Metadata caps. Each list is bounded independently.
const (
	MaxAttachments    = 10
	MaxAttachmentData = 512 << 10
	MaxArtifacts      = 10
	MaxArtifactData   = 200 << 10
	MaxNoteFiles      = 20
	MaxNoteLen        = 8 << 10
)

// Metadata keys of a persisted message.
const (
	KeyAttachments   = "attachments"
	KeyArtifacts     = "artifacts"
	KeyAnalysisNotes = "analysis_notes"
)

// Metadata is what a turn attaches to the messages it persists.
type Metadata struct {
	Attachments []core.Attachment
	Artifacts   []core.Artifact
	// Notes maps a log file name to its analysis note.
	Notes map[string]string
}

// Empty reports whether there is nothing to attach.
func (m Metadata) Empty() bool {
	return len(m.Attachments) == 0 && len(m.Artifacts) == 0 && len(m.Notes) == 0
}

// Build returns the capped metadata map, or nil when there is nothing to
// attach. Oversized inline payloads are dropped rather than truncated.
func (m Metadata) Build() map[string]any {
	out := map[string]any{}

	if len(m.Attachments) > 0 {
		n := min(len(m.Attachments), MaxAttachments)
		atts := make([]core.Attachment, 0, n)
		for _, a := range m.Attachments[:n] {
			if len(a.DataURL) > MaxAttachmentData {
				a.DataURL = ""
			}
			atts = append(atts, a)
		}
		out[KeyAttachments] = atts
	}

	if len(m.Artifacts) > 0 {
		n := min(len(m.Artifacts), MaxArtifacts)
		arts := make([]core.Artifact, 0, n)
		for _, a := range m.Artifacts[:n] {
			a = a.Serializable()
			if len(a.Content) > MaxArtifactData {
				a.Content = truncateBytes(a.Content, MaxArtifactData)
			}
			if len(a.ImageData) > MaxArtifactData {
				a.ImageData = ""
			}
			arts = append(arts, a)
		}
		out[KeyArtifacts] = arts
	}

	if len(m.Notes) > 0 {
		files := sortedKeys(m.Notes)
		if len(files) > MaxNoteFiles {
			files = files[:MaxNoteFiles]
		}
		notes := make(map[string]string, len(files))
		for _, f := range files {
			notes[f] = truncateBytes(m.Notes[f], MaxNoteLen)
		}
		out[KeyAnalysisNotes] = notes
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// Placeholder is the assistant content persisted when a turn produced no
// readable text. It returns "" when there is nothing to describe.
func (m Metadata) Placeholder() string {
	var parts []string
	if len(m.Artifacts) > 0 {
		titles := make([]string, 0, len(m.Artifacts))
		for _, a := range m.Artifacts {
			titles = append(titles, util.FirstNonEmpty(a.Title, string(a.Type)))
		}
		if len(titles) == 1 {
			parts = append(parts, fmt.Sprintf("Created artifact: %s.", titles[0]))
		} else {
			parts = append(parts, fmt.Sprintf("Created artifacts: %s.", strings.Join(titles, ", ")))
		}
	}
	if len(m.Notes) > 0 {
		parts = append(parts, fmt.Sprintf("Analysis notes recorded for: %s.", strings.Join(sortedKeys(m.Notes), ", ")))
	}
	return strings.Join(parts, " ")
}

// ArtifactsFrom decodes the artifacts stored in persisted metadata. It
// accepts both typed slices and their JSON-decoded form.
func ArtifactsFrom(meta map[string]any) []core.Artifact {
	return decodeList[core.Artifact](meta[KeyArtifacts])
}

// AttachmentsFrom decodes the attachments stored in persisted metadata.
func AttachmentsFrom(meta map[string]any) []core.Attachment {
	return decodeList[core.Attachment](meta[KeyAttachments])
}

func decodeList[T any](v any) []T {
	switch x := v.(type) {
	case nil:
		return nil
	case []T:
		return append([]T(nil), x...)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out []T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
