package fan

// Operation names a state-changing request. Used for dispatch policy and logs.
type Operation string

const (
	OpSetPercentage Operation = "set_percentage"
	OpOscillate     Operation = "oscillate"
	OpSetDirection  Operation = "set_direction"
	OpTurnOn        Operation = "turn_on"
	OpTurnOff       Operation = "turn_off"
)

// DispatchPolicy decides whether an operation transmits after updating state.
type DispatchPolicy int

const (
	// DispatchAlways transmits unconditionally.
	DispatchAlways DispatchPolicy = iota

	// DispatchWhenRunning transmits only while the fan runs at a known level.
	// A direction change on a stopped fan is remembered for the next start.
	DispatchWhenRunning

	// DispatchWhenResolvable transmits unless the command would have to name
	// a level that is not known. Turning oscillation off while the remote has
	// switched the fan on at an unknown level is remembered instead.
	DispatchWhenResolvable
)

var dispatchPolicies = map[Operation]DispatchPolicy{
	OpSetPercentage: DispatchAlways,
	OpOscillate:     DispatchWhenResolvable,
	OpSetDirection:  DispatchWhenRunning,
	OpTurnOn:        DispatchAlways,
	OpTurnOff:       DispatchAlways,
}

// PolicyFor returns the dispatch policy of op. Unknown operations always dispatch.
func PolicyFor(op Operation) DispatchPolicy {
	if p, ok := dispatchPolicies[op]; ok {
		return p
	}
	return DispatchAlways
}

func (p DispatchPolicy) allows(s State) bool {
	switch p {
	case DispatchWhenRunning:
		return s.Speed.Running()
	case DispatchWhenResolvable:
		return s.Speed != SpeedUnknown || s.Oscillating
	default:
		return true
	}
}
