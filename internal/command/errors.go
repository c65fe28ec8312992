package command

import "errors"

// Domain errors for the command package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnknownFunction is returned when a script references a function
	// outside the closed set. Surfaces at catalog load, not execution.
	ErrUnknownFunction = errors.New("command: unknown function")

	// ErrInvalidScript is returned for malformed statements or wrong arity.
	ErrInvalidScript = errors.New("command: invalid script")

	// ErrConnection wraps transport failures during execution. The script
	// aborts at the failing statement; remaining statements do not run.
	ErrConnection = errors.New("command: connection error")
)
