package fan

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Top-level command table keys.
const (
	keyOff       = "off"
	keyOscillate = "oscillate"
)

// maxSpeeds keeps every level on a distinct whole percentage.
const maxSpeeds = 100

// Capabilities are feature flags derived from a definition's command table.
type Capabilities uint8

const (
	// CapDirection is set when the table has both "forward" and "reverse".
	CapDirection Capabilities = 1 << iota

	// CapOscillate is set when the table has an "oscillate" entry.
	CapOscillate
)

// Has reports whether all flags in c2 are set.
func (c Capabilities) Has(c2 Capabilities) bool {
	return c&c2 == c2
}

// DefinitionRecord is the on-disk JSON form of a device definition.
type DefinitionRecord struct {
	Manufacturer        string                     `json:"manufacturer"`
	SupportedModels     []string                   `json:"supportedModels"`
	SupportedController string                     `json:"supportedController"`
	CommandsEncoding    string                     `json:"commandsEncoding"`
	Speed               []string                   `json:"speed"`
	Commands            map[string]json.RawMessage `json:"commands"`
}

// DeviceDefinition is a validated code set for one device model.
// It is immutable after BuildDefinition returns.
type DeviceDefinition struct {
	Manufacturer        string
	SupportedModels     []string
	SupportedController string
	CommandsEncoding    string

	// Speeds are ordered lowest to highest and never include "off".
	Speeds []Speed

	Commands     *CommandTable
	Capabilities Capabilities
}

// SupportsDirection reports whether the device can change rotation direction.
func (d *DeviceDefinition) SupportsDirection() bool {
	return d.Capabilities.Has(CapDirection)
}

// SupportsOscillation reports whether the device can oscillate.
func (d *DeviceDefinition) SupportsOscillation() bool {
	return d.Capabilities.Has(CapOscillate)
}

// HasSpeed reports whether s is one of the declared levels.
func (d *DeviceDefinition) HasSpeed(s Speed) bool {
	for _, sp := range d.Speeds {
		if sp == s {
			return true
		}
	}
	return false
}

// ParseDefinition decodes and validates a JSON device definition.
func ParseDefinition(data []byte) (*DeviceDefinition, error) {
	var rec DefinitionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decoding: %w", ErrInvalidDefinition, err)
	}
	return BuildDefinition(rec)
}

// BuildDefinition validates rec and builds its command table.
//
// The returned error wraps ErrInvalidDefinition and names the first
// missing or malformed entry.
func BuildDefinition(rec DefinitionRecord) (*DeviceDefinition, error) {
	speeds, err := buildSpeeds(rec.Speed)
	if err != nil {
		return nil, err
	}

	table, err := buildCommandTable(rec.Commands, speeds)
	if err != nil {
		return nil, err
	}

	def := &DeviceDefinition{
		Manufacturer:        rec.Manufacturer,
		SupportedModels:     append([]string(nil), rec.SupportedModels...),
		SupportedController: rec.SupportedController,
		CommandsEncoding:    rec.CommandsEncoding,
		Speeds:              speeds,
		Commands:            table,
	}
	if table.hasDirections() {
		def.Capabilities |= CapDirection
	}
	if table.oscillate != nil {
		def.Capabilities |= CapOscillate
	}
	return def, nil
}

func buildSpeeds(names []string) ([]Speed, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: speed list is empty", ErrInvalidDefinition)
	}
	if len(names) > maxSpeeds {
		return nil, fmt.Errorf("%w: %d speeds declared, at most %d supported",
			ErrInvalidDefinition, len(names), maxSpeeds)
	}

	speeds := make([]Speed, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		switch {
		case name == "":
			return nil, fmt.Errorf("%w: empty speed name", ErrInvalidDefinition)
		case name == string(SpeedOff) || name == string(SpeedUnknown):
			return nil, fmt.Errorf("%w: speed name %q is reserved", ErrInvalidDefinition, name)
		case seen[name]:
			return nil, fmt.Errorf("%w: speed %q declared twice", ErrInvalidDefinition, name)
		}
		seen[name] = true
		speeds = append(speeds, Speed(name))
	}
	return speeds, nil
}

// decodeCommand accepts either a single frame ("...") or a frame list (["...", "..."]).
func decodeCommand(raw json.RawMessage) (Command, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var frames []string
		if err := json.Unmarshal(raw, &frames); err != nil {
			return nil, err
		}
		for _, f := range frames {
			if f == "" {
				return nil, fmt.Errorf("empty frame")
			}
		}
		if len(frames) == 0 {
			return nil, fmt.Errorf("empty frame list")
		}
		return Command(frames), nil
	}

	var frame string
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, err
	}
	if frame == "" {
		return nil, fmt.Errorf("empty frame")
	}
	return Command{frame}, nil
}
