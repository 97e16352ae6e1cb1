// Package panel holds the run-state model shown to the user: lanes,
// objectives, the shared todo list and subagent bookkeeping.
//
// Reduce is a pure transition function. It never mutates its input and
// applies one staleness rule to every objective update, so duplicated or
// reordered events converge on the same state. Store wraps Reduce as the
// single authoritative mutable holder and hands out cloned snapshots.
package panel
