package settings

import "errors"

// Domain errors for the settings package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound is returned when a key has never been set.
	ErrNotFound = errors.New("settings: key not found")

	// ErrInvalidValue is returned when a stored value cannot be decoded.
	ErrInvalidValue = errors.New("settings: invalid value")
)
