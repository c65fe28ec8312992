package catalog

import "errors"

// Domain errors for the catalog package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidDocument is returned for catalog files that decode but
	// fail structural validation (missing id, duplicate id).
	ErrInvalidDocument = errors.New("catalog: invalid document")
)
