package core

import "time"

// ArtifactType distinguishes rendered artifact flavours.
type ArtifactType string

const (
	ArtifactImage   ArtifactType = "image"
	ArtifactArticle ArtifactType = "article"
)

// Artifact describes a rendered output (generated image or article) produced
// during a turn.
type Artifact struct {
	ID        string       `json:"id"`
	Type      ArtifactType `json:"type"`
	Title     string       `json:"title,omitempty"`
	Content   string       `json:"content,omitempty"`
	ImageData string       `json:"image_data,omitempty"`
	MimeType  string       `json:"mime_type,omitempty"`
	URL       string       `json:"url,omitempty"`
	MessageID string       `json:"message_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`

	// Runtime-only fields; never persisted.
	Visible bool `json:"-"`
	Current bool `json:"-"`
}

// Serializable returns the subset of the artifact that survives a reload.
func (a Artifact) Serializable() Artifact {
	a.Visible = false
	a.Current = false
	return a
}

// ArtifactStore receives artifacts rendered by the presentation layer.
// Implementations should be safe for concurrent use.
type ArtifactStore interface {
	AddArtifact(a Artifact)
	SetCurrentArtifact(id string)
	SetArtifactsVisible(visible bool)
	ResetArtifacts()
}
