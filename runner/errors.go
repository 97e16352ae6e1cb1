package runner

import "errors"

var (
	// ErrTurnInFlight is returned when a turn is started while another one
	// has not finished.
	ErrTurnInFlight = errors.New("a turn is already in flight")

	// ErrNoInterrupt is returned by ResolveInterrupt when the run is not
	// waiting for input.
	ErrNoInterrupt = errors.New("no interrupt pending")

	// ErrNoSteering is returned by ResolveSteering when no decision is
	// pending.
	ErrNoSteering = errors.New("no steering decision pending")

	// ErrEmptyMessage is returned for a message without text or attachments.
	ErrEmptyMessage = errors.New("message has no content")

	// ErrNoAssistant is returned by AttachArtifact when no assistant message
	// exists to attach to.
	ErrNoAssistant = errors.New("no assistant message")
)
