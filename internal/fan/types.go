package fan

import (
	"context"
	"time"
)

// Speed is a named speed level from the device definition, or one of the
// two reserved values below.
type Speed string

const (
	// SpeedOff is the powered-off sentinel.
	SpeedOff Speed = "off"

	// SpeedUnknown means the fan is on but its level is not known, which
	// happens when it was switched on by its own remote.
	SpeedUnknown Speed = "unknown"
)

// Running reports whether s is a concrete speed level.
func (s Speed) Running() bool {
	return s != SpeedOff && s != SpeedUnknown && s != ""
}

// Direction is the rotation direction key of the command table.
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"

	// DirectionDefault is the table key used by devices without direction control.
	DirectionDefault Direction = "default"
)

// Command is a transmittable payload: one or more raw frames in the
// encoding declared by the definition, sent in order.
type Command []string

// Transport sends commands to the physical emitter.
//
// Implementations are responsible for pacing (minimum delay between
// transmissions). A Fan never calls Send concurrently with itself.
type Transport interface {
	Send(ctx context.Context, cmd Command) error
}

// Logger is the logging dependency of this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// State is the tracked state of one fan. It is also the persisted form.
type State struct {
	Speed Speed `json:"speed"`

	// Direction is empty when the device has no direction control.
	Direction Direction `json:"direction,omitempty"`

	// Oscillating is only meaningful when the device can oscillate.
	Oscillating bool `json:"oscillating"`

	// LastOnSpeed is the most recent non-off level set by a command.
	LastOnSpeed Speed `json:"last_on_speed,omitempty"`

	// OnByRemote is set when the power sensor saw the fan switch on
	// without a command from us.
	OnByRemote bool `json:"on_by_remote"`
}

// ChangeSource records what caused a state change.
type ChangeSource string

const (
	SourceCommand ChangeSource = "command"
	SourceSensor  ChangeSource = "sensor"
	SourceRestore ChangeSource = "restore"
)

// Snapshot is the externally visible state of a fan.
type Snapshot struct {
	FanID string `json:"fan_id"`
	Speed Speed  `json:"speed"`

	// Percentage is nil while the fan is on at an unknown level.
	Percentage *int `json:"percentage"`

	Direction   *Direction `json:"direction,omitempty"`
	Oscillating *bool      `json:"oscillating,omitempty"`
	LastOnSpeed Speed      `json:"last_on_speed,omitempty"`
	On          bool       `json:"on"`
	OnByRemote  bool       `json:"on_by_remote"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Listener receives a snapshot after every state change.
//
// Listeners run while the fan is locked, in change order. They must not
// call back into the Fan and should hand work off rather than block.
type Listener func(snap Snapshot, source ChangeSource)
