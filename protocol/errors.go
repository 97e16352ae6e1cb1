package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamEnded is returned when the event stream closes before the run
// reported RUN_FINISHED or RUN_ERROR.
var ErrStreamEnded = errors.New("event stream ended before the run finished")

// RunFailedError is a failure reported by the agent backend itself.
type RunFailedError struct {
	Message string
	Code    string
	// Payload is the raw failure value as reported, for normalisation.
	Payload any
}

// Error implements error.
func (e *RunFailedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("agent run failed (%s): %s", e.Code, e.Message)
	}
	return "agent run failed: " + e.Message
}

// HTTPStatusError is a non-2xx response from an HTTP transport.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

// Error implements error.
func (e *HTTPStatusError) Error() string {
	text := http.StatusText(e.StatusCode)
	if e.Body != "" {
		return fmt.Sprintf("agent endpoint returned %d %s: %s", e.StatusCode, text, e.Body)
	}
	return fmt.Sprintf("agent endpoint returned %d %s", e.StatusCode, text)
}

// Transient reports whether retrying the same request may succeed.
func (e *HTTPStatusError) Transient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
