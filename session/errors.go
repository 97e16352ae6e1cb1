package session

import "errors"

var (
	// ErrNotFound is returned when a session or message does not exist.
	ErrNotFound = errors.New("message not found")

	// ErrInvalidSession is returned for an empty session ID.
	ErrInvalidSession = errors.New("invalid session id")
)
