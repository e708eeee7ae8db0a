package fan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Options configures a Fan.
type Options struct {
	// ID identifies the fan in topics, storage and the API. Required.
	ID string

	// Name is the human-readable name.
	Name string

	// DeviceCode is the code file number the definition was loaded from.
	DeviceCode int

	// Definition is the validated device definition. Required.
	Definition *DeviceDefinition

	// Transport sends resolved commands. Required.
	Transport Transport

	// Logger receives operation logs. Optional.
	Logger Logger
}

// Info describes a fan's device and capabilities. It never changes.
type Info struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	DeviceCode          int      `json:"device_code"`
	Manufacturer        string   `json:"manufacturer"`
	SupportedModels     []string `json:"supported_models"`
	SupportedController string   `json:"supported_controller"`
	CommandsEncoding    string   `json:"commands_encoding"`
	Speeds              []Speed  `json:"speeds"`
	SpeedCount          int      `json:"speed_count"`
	SupportsDirection   bool     `json:"supports_direction"`
	SupportsOscillation bool     `json:"supports_oscillation"`
}

// Fan tracks one IR/RF fan and sends the commands that realise requested changes.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - A single mutex covers state mutation, command resolution and the
//     transport call, so one fan never has two transmissions in flight and
//     sensor updates never interleave with a command.
type Fan struct {
	id        string
	name      string
	code      int
	def       *DeviceDefinition
	transport Transport
	logger    Logger

	mu        sync.Mutex
	state     State
	updatedAt time.Time
	listeners []Listener
}

// New creates a Fan in its default state: off, direction reverse when the
// device supports direction, not oscillating.
//
// Returns:
//   - *Fan: Ready fan
//   - error: If a required option is missing
func New(opts Options) (*Fan, error) {
	if opts.ID == "" {
		return nil, errors.New("fan: id is required")
	}
	if opts.Definition == nil || opts.Definition.Commands == nil {
		return nil, errors.New("fan: definition is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("fan: transport is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	f := &Fan{
		id:        opts.ID,
		name:      opts.Name,
		code:      opts.DeviceCode,
		def:       opts.Definition,
		transport: opts.Transport,
		logger:    logger,
		state:     State{Speed: SpeedOff},
		updatedAt: time.Now().UTC(),
	}
	if f.def.SupportsDirection() {
		f.state.Direction = DirectionReverse
	}
	return f, nil
}

// ID returns the fan identifier.
func (f *Fan) ID() string { return f.id }

// Definition returns the device definition.
func (f *Fan) Definition() *DeviceDefinition { return f.def }

// Info returns the fan's static description.
func (f *Fan) Info() Info {
	return Info{
		ID:                  f.id,
		Name:                f.name,
		DeviceCode:          f.code,
		Manufacturer:        f.def.Manufacturer,
		SupportedModels:     append([]string(nil), f.def.SupportedModels...),
		SupportedController: f.def.SupportedController,
		CommandsEncoding:    f.def.CommandsEncoding,
		Speeds:              append([]Speed(nil), f.def.Speeds...),
		SpeedCount:          len(f.def.Speeds),
		SupportsDirection:   f.def.SupportsDirection(),
		SupportsOscillation: f.def.SupportsOscillation(),
	}
}

// OnChange registers a listener called after every state change.
func (f *Fan) OnChange(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

// Restore loads a previously persisted state without transmitting.
//
// Values that do not fit this device are dropped: an undeclared speed
// becomes off, direction is only restored when supported, and oscillation
// only when the device can oscillate.
func (f *Fan) Restore(st State) {
	f.mu.Lock()
	defer f.mu.Unlock()

	restored := State{Speed: SpeedOff, Direction: f.state.Direction}

	switch {
	case st.Speed == SpeedOff, st.Speed == SpeedUnknown:
		restored.Speed = st.Speed
	case f.def.HasSpeed(st.Speed):
		restored.Speed = st.Speed
	default:
		f.logger.Warn("restored speed not declared by device, using off",
			"fan_id", f.id, "speed", st.Speed)
	}

	if f.def.SupportsDirection() && (st.Direction == DirectionForward || st.Direction == DirectionReverse) {
		restored.Direction = st.Direction
	}
	if f.def.SupportsOscillation() {
		restored.Oscillating = st.Oscillating
	}
	if f.def.HasSpeed(st.LastOnSpeed) {
		restored.LastOnSpeed = st.LastOnSpeed
	}
	restored.OnByRemote = st.OnByRemote && !restored.Speed.Running()

	f.state = restored
	f.updatedAt = time.Now().UTC()
}

// State returns a copy of the tracked state.
func (f *Fan) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// CurrentState returns the externally visible snapshot.
func (f *Fan) CurrentState() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// IsOn reports the derived power state: on when the remote switched the fan
// on or a speed other than off is tracked.
func (f *Fan) IsOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return isOn(f.state)
}

func isOn(s State) bool {
	return s.OnByRemote || s.Speed != SpeedOff
}

// SetPercentage sets the speed from a 0..100 percentage and transmits.
// 0 turns the fan off; any other value selects the level whose bucket
// contains it and becomes the remembered on-speed.
func (f *Fan) SetPercentage(ctx context.Context, pct int) error {
	return f.setPercentage(ctx, OpSetPercentage, pct)
}

// TurnOn switches the fan on. With pct nil it resumes at the last on-speed,
// or the lowest level if the fan has never run.
func (f *Fan) TurnOn(ctx context.Context, pct *int) error {
	if pct != nil {
		return f.setPercentage(ctx, OpTurnOn, *pct)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.state.LastOnSpeed
	if !f.def.HasSpeed(target) {
		target = f.def.Speeds[0]
	}
	p, _ := speedToPercentage(f.def.Speeds, target)
	f.applyPercentageLocked(p)
	return f.commitLocked(ctx, OpTurnOn)
}

// TurnOff switches the fan off. It is SetPercentage(0).
func (f *Fan) TurnOff(ctx context.Context) error {
	return f.setPercentage(ctx, OpTurnOff, 0)
}

// Oscillate turns oscillation on or off and transmits. Turning it off
// while the remote has switched the fan on at an unknown level is stored
// without transmitting.
func (f *Fan) Oscillate(ctx context.Context, on bool) error {
	if !f.def.SupportsOscillation() {
		return fmt.Errorf("%w: oscillation", ErrUnsupported)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.state.Oscillating = on
	return f.commitLocked(ctx, OpOscillate)
}

// SetDirection changes rotation direction. The command is only sent while
// the fan runs at a known level; otherwise the direction is stored for the
// next start.
func (f *Fan) SetDirection(ctx context.Context, dir Direction) error {
	if !f.def.SupportsDirection() {
		return fmt.Errorf("%w: direction", ErrUnsupported)
	}
	if dir != DirectionForward && dir != DirectionReverse {
		return fmt.Errorf("%w: unknown direction %q", ErrUnsupported, dir)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.state.Direction = dir
	return f.commitLocked(ctx, OpSetDirection)
}

func (f *Fan) setPercentage(ctx context.Context, op Operation, pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidPercentage, pct)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.applyPercentageLocked(pct)
	return f.commitLocked(ctx, op)
}

func (f *Fan) applyPercentageLocked(pct int) {
	speed := percentageToSpeed(f.def.Speeds, pct)
	f.state.Speed = speed
	if speed != SpeedOff {
		f.state.LastOnSpeed = speed
	}
}

// commitLocked transmits according to op's dispatch policy and notifies
// listeners. The caller holds f.mu.
func (f *Fan) commitLocked(ctx context.Context, op Operation) error {
	var err error
	if PolicyFor(op).allows(f.state) {
		err = f.dispatchLocked(ctx, op)
	} else {
		f.logger.Debug("state updated without transmitting",
			"fan_id", f.id, "operation", op, "speed", f.state.Speed)
	}

	f.notifyLocked(SourceCommand)
	return err
}

func (f *Fan) dispatchLocked(ctx context.Context, op Operation) error {
	cmd, err := f.def.Commands.Resolve(f.resolutionLocked())
	if err != nil {
		f.logger.Warn("no command for requested state",
			"fan_id", f.id, "operation", op, "error", err)
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	f.state.OnByRemote = false

	if err := f.transport.Send(ctx, cmd); err != nil {
		f.logger.Error("command transmission failed",
			"fan_id", f.id, "operation", op, "error", err)
		return nil
	}

	f.logger.Debug("command sent",
		"fan_id", f.id, "operation", op, "speed", f.state.Speed,
		"direction", f.state.Direction, "oscillating", f.state.Oscillating)
	return nil
}

func (f *Fan) resolutionLocked() Resolution {
	r := Resolution{Speed: f.state.Speed}
	if f.def.SupportsDirection() {
		r.Direction = f.state.Direction
	}
	if f.def.SupportsOscillation() {
		r.Oscillating = f.state.Oscillating
	}
	return r
}

func (f *Fan) notifyLocked(source ChangeSource) {
	f.updatedAt = time.Now().UTC()
	if len(f.listeners) == 0 {
		return
	}
	snap := f.snapshotLocked()
	for _, l := range f.listeners {
		l(snap, source)
	}
}

func (f *Fan) snapshotLocked() Snapshot {
	s := f.state
	snap := Snapshot{
		FanID:       f.id,
		Speed:       s.Speed,
		LastOnSpeed: s.LastOnSpeed,
		On:          isOn(s),
		OnByRemote:  s.OnByRemote,
		UpdatedAt:   f.updatedAt,
	}
	if pct, ok := speedToPercentage(f.def.Speeds, s.Speed); ok {
		snap.Percentage = &pct
	}
	if f.def.SupportsDirection() {
		dir := s.Direction
		snap.Direction = &dir
	}
	if f.def.SupportsOscillation() {
		osc := s.Oscillating
		snap.Oscillating = &osc
	}
	return snap
}
