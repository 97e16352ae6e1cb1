package persist

import "errors"

// ErrNotPersisted is returned when a local message has no durable ID yet.
var ErrNotPersisted = errors.New("message not persisted")
