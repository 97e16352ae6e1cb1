package artifact

import "fmt"

var (
	// ErrNotFound is returned when no artifact with the given id exists in
	// the store.
	ErrNotFound = fmt.Errorf("artifact not found")
)
