package hru

import "errors"

// Domain errors for the hru package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConfigured signals that no unit is selected or the selection
	// cannot be resolved against the catalog. Non-fatal: callers skip the
	// cycle.
	ErrNotConfigured = errors.New("hru: not configured")

	// ErrAxisUnsupported is returned when a write targets an axis the
	// strategy declares no script for.
	ErrAxisUnsupported = errors.New("hru: axis unsupported")

	// ErrUnknownMode is returned when a mode name resolves to no device
	// code.
	ErrUnknownMode = errors.New("hru: unknown mode")
)
