package irfan

import "errors"

var (
	// ErrFanNotFound is returned when a fan id is not managed by the bridge.
	ErrFanNotFound = errors.New("irfan: fan not found")

	// ErrUnknownCommand is returned for a command name the bridge does not handle.
	ErrUnknownCommand = errors.New("irfan: unknown command")

	// ErrInvalidParameters is returned when a command's parameters are
	// missing or of the wrong type.
	ErrInvalidParameters = errors.New("irfan: invalid parameters")
)
