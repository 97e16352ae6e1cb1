package artifact

import (
	"sync"

	"github.com/moonshubh/Agent-Sparrow-sub001/core"
)

// InMemoryStore is an in‑process ArtifactStore. It keeps artifacts in
// insertion order guarded by an RWMutex and tracks the current artifact and
// panel visibility the way a rendering surface would. Artifacts are copied
// on add and retrieval.
//
// Adding an artifact whose ID already exists replaces it in place.
type InMemoryStore struct {
	mu        sync.RWMutex
	order     []string
	artifacts map[string]core.Artifact
	current   string
	visible   bool
}

var _ core.ArtifactStore = (*InMemoryStore)(nil)

// NewInMemoryStore returns an empty in‑memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]core.Artifact)}
}

// AddArtifact stores (or replaces) an artifact.
func (s *InMemoryStore) AddArtifact(a core.Artifact) {
	if a.ID == "" {
		a.ID = core.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.artifacts[a.ID]; !exists {
		s.order = append(s.order, a.ID)
	}
	s.artifacts[a.ID] = a.Serializable()
}

// SetCurrentArtifact marks id as the artifact in focus. Unknown IDs are
// ignored.
func (s *InMemoryStore) SetCurrentArtifact(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artifacts[id]; ok {
		s.current = id
	}
}

// SetArtifactsVisible toggles the artifact panel.
func (s *InMemoryStore) SetArtifactsVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.visible = visible
}

// ResetArtifacts removes every artifact and hides the panel.
func (s *InMemoryStore) ResetArtifacts() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	clear(s.artifacts)
	s.current = ""
	s.visible = false
}

// Get returns the artifact with id or ErrNotFound. Visible and Current
// reflect the store's view.
func (s *InMemoryStore) Get(id string) (core.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[id]
	if !ok {
		return core.Artifact{}, ErrNotFound
	}
	return s.decorate(a), nil
}

// List returns every artifact in insertion order.
func (s *InMemoryStore) List() []core.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Artifact, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.decorate(s.artifacts[id]))
	}
	return out
}

// Current returns the artifact in focus.
func (s *InMemoryStore) Current() (core.Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[s.current]
	if !ok {
		return core.Artifact{}, false
	}
	return s.decorate(a), true
}

// Visible reports whether the artifact panel is shown.
func (s *InMemoryStore) Visible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.visible
}

// Delete removes the artifact if present or returns ErrNotFound.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artifacts[id]; !ok {
		return ErrNotFound
	}
	delete(s.artifacts, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	if s.current == id {
		s.current = ""
	}
	return nil
}

func (s *InMemoryStore) decorate(a core.Artifact) core.Artifact {
	a.Visible = s.visible
	a.Current = a.ID == s.current
	return a
}
