package timeline

import "errors"

// Domain errors for the timeline package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrModeNotFound is returned when a referenced mode id does not exist.
	ErrModeNotFound = errors.New("timeline: mode not found")
)
