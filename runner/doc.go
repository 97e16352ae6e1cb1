// Package runner owns the lifecycle of a chat turn.
//
// A Runner is a mutex-guarded actor around one conversation. SendMessage runs
// a turn on the calling goroutine: it appends the user message, opens an
// agent run, streams text into the transcript, routes custom events through
// the normalizer and dispatcher into the panel store, retries transient
// failures with backoff, reconciles the final message list and persists the
// result exactly once. Only one turn may be in flight; Abort cancels it and
// Submit decides whether a message typed mid-run continues the unfinished
// objective.
//
// Presentation layers read Snapshot or register with Subscribe.
package runner
