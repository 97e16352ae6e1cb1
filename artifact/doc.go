// Package artifact contains implementations of core.ArtifactStore.
//
// The ArtifactStore interface lives in the core package so the runner never
// depends on a concrete presentation layer. Rendering surfaces (a web view,
// a terminal UI) implement the interface themselves; the in-memory store
// here backs tests, the CLI and single-process hosts that only need to read
// back what a turn produced.
package artifact
