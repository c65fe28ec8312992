package discovery

import "errors"

// Domain errors for the discovery package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnexpectedPayload is returned when a command topic receives a
	// payload it does not recognise.
	ErrUnexpectedPayload = errors.New("discovery: unexpected payload")

	// ErrInvalidDuration is returned when boost_duration/set receives a
	// value that is not a positive whole number of minutes.
	ErrInvalidDuration = errors.New("discovery: invalid boost duration")
)
