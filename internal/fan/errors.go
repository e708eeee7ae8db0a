package fan

import "errors"

var (
	// ErrInvalidDefinition is returned when a device definition is missing
	// required entries or is otherwise unusable.
	ErrInvalidDefinition = errors.New("fan: invalid device definition")

	// ErrNoMatchingCommand is returned when the command table has no entry
	// for the requested state.
	ErrNoMatchingCommand = errors.New("fan: no matching command")

	// ErrDispatchFailed is returned by an operation whose command could not
	// be resolved. The state change is kept.
	ErrDispatchFailed = errors.New("fan: dispatch failed")

	// ErrTransportFailure wraps errors raised while transmitting a command.
	// Fan operations log it and never return it.
	ErrTransportFailure = errors.New("fan: transport failure")

	// ErrInvalidPercentage is returned for percentages outside 0..100.
	ErrInvalidPercentage = errors.New("fan: percentage must be between 0 and 100")

	// ErrUnsupported is returned when an operation needs a capability the
	// device does not have (direction or oscillation).
	ErrUnsupported = errors.New("fan: operation not supported by device")

	// ErrStateNotFound is returned by repositories when nothing has been
	// stored for a fan yet.
	ErrStateNotFound = errors.New("fan: no stored state")
)
