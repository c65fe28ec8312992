package modbus

import "errors"

// Domain errors for the modbus package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnection wraps transport failures: dial, read, write, timeout.
	// The connection transitions to disconnected and a reconnect is
	// scheduled; the failing operation is not retried.
	ErrConnection = errors.New("modbus: connection error")

	// ErrNotConnected is returned when an operation races a disconnect.
	ErrNotConnected = errors.New("modbus: not connected")

	// ErrDestroyed is returned for operations on an invalidated handle.
	ErrDestroyed = errors.New("modbus: connection destroyed")

	// ErrPoolClosed is returned for operations after pool shutdown.
	ErrPoolClosed = errors.New("modbus: pool closed")
)
