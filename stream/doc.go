// Package stream holds the text side of a turn: the sanitiser that keeps
// backend-internal payloads and inline data-URI images out of the visible
// transcript, the Transcript that folds streamed deltas into a single
// trailing assistant message, and the reconciliation of that local list with
// the authoritative list the backend sends at the end of a run.
package stream
