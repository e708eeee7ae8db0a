package fan

import "sync"

// PowerState is a reading from a fan's power sensor.
type PowerState string

const (
	// PowerAbsent means the sensor has no usable value (unavailable, unknown, empty).
	PowerAbsent PowerState = ""
	PowerOn     PowerState = "on"
	PowerOff    PowerState = "off"
)

// Watcher reconciles a fan's tracked state with its power sensor.
//
// The sensor only tells on from off, so it can correct the power state
// but never the level. The watcher never transmits.
type Watcher struct {
	fan *Fan

	mu   sync.Mutex
	last PowerState
}

// NewWatcher creates a Watcher for f.
func NewWatcher(f *Fan) *Watcher {
	return &Watcher{fan: f}
}

// Handle feeds the latest sensor reading. The previous reading is tracked
// by the watcher, so callers that only see new values (MQTT) can use this.
//
// Returns true if the fan's state was changed.
func (w *Watcher) Handle(reading PowerState) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev := w.last
	w.last = reading
	return w.fan.Observe(prev, reading)
}

// Observe applies a sensor transition from prev to next.
//
// Rules:
//   - next absent, or equal to prev: ignored
//   - on while tracked off: marked on-by-remote with an unknown level
//   - off: forced off and on-by-remote cleared
//   - on while already at a known level: nothing to correct
//
// Returns true if the state changed and listeners were notified.
func (f *Fan) Observe(prev, next PowerState) bool {
	if next == PowerAbsent || next == prev {
		f.logger.Debug("sensor notification ignored", "fan_id", f.id, "prev", prev, "next", next)
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch next {
	case PowerOn:
		if f.state.Speed != SpeedOff {
			return false
		}
		f.state.OnByRemote = true
		f.state.Speed = SpeedUnknown
		f.logger.Info("fan switched on outside the bridge", "fan_id", f.id)

	case PowerOff:
		if f.state.Speed == SpeedOff && !f.state.OnByRemote {
			return false
		}
		f.state.OnByRemote = false
		f.state.Speed = SpeedOff
		f.logger.Info("fan switched off outside the bridge", "fan_id", f.id)

	default:
		return false
	}

	f.notifyLocked(SourceSensor)
	return true
}
