package runner

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
)

// Custom events handled by the runner rather than the panel.
const (
	EventImageArtifact    = "image_artifact"
	EventArticleArtifact  = "article_artifact"
	EventLogAnalysisNotes = "log_analysis_notes"
)

// parseArtifact reads an artifact event. Images need data or a URL and
// articles need content or a URL.
func parseArtifact(kind core.ArtifactType, value json.RawMessage, now time.Time) (core.Artifact, bool) {
	if !gjson.ValidBytes(value) {
		return core.Artifact{}, false
	}
	res := gjson.ParseBytes(value)
	if !res.IsObject() {
		return core.Artifact{}, false
	}

	a := core.Artifact{
		ID:        pick(res, "id", "artifactId", "artifact_id"),
		Type:      kind,
		Title:     pick(res, "title", "name"),
		Content:   pick(res, "content", "markdown", "body"),
		ImageData: pick(res, "imageData", "image_data", "data"),
		MimeType:  pick(res, "mimeType", "mime_type"),
		URL:       pick(res, "url", "imageUrl", "image_url"),
		CreatedAt: now,
	}
	switch kind {
	case core.ArtifactImage:
		if a.ImageData == "" && a.URL == "" {
			return core.Artifact{}, false
		}
		if a.Title == "" {
			a.Title = "Generated image"
		}
		if a.MimeType == "" {
			a.MimeType = "image/png"
		}
	case core.ArtifactArticle:
		if a.Content == "" && a.URL == "" {
			return core.Artifact{}, false
		}
		if a.Title == "" {
			a.Title = "Article"
		}
	}
	if a.ID == "" {
		a.ID = core.NewID()
	}
	return a, true
}

// parseNotes accepts {"file": name, "notes": text}, {"notes": {name: text}}
// and a bare {name: text} object.
func parseNotes(value json.RawMessage) map[string]string {
	if !gjson.ValidBytes(value) {
		return nil
	}
	res := gjson.ParseBytes(value)
	if !res.IsObject() {
		return nil
	}

	file := pick(res, "file", "fileName", "file_name", "filename")
	if note := pick(res, "notes", "note", "content", "summary"); file != "" && note != "" {
		return map[string]string{file: note}
	}

	src := res.Get("notes")
	if !src.IsObject() {
		src = res
	}
	out := map[string]string{}
	src.ForEach(func(k, v gjson.Result) bool {
		if name, text := strings.TrimSpace(k.String()), strings.TrimSpace(v.String()); name != "" && text != "" && v.Type == gjson.String {
			out[name] = text
		}
		return true
	})
	return out
}

func pick(res gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := res.Get(k); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return strings.TrimSpace(v.Str)
		}
	}
	return ""
}
