package fan

import (
	"encoding/json"
	"fmt"
)

// CommandTable maps fan states to commands. It is built once by
// BuildDefinition and never modified.
type CommandTable struct {
	off       Command
	oscillate Command
	levels    map[Direction]map[Speed]Command
}

// Resolution is the part of a fan's state that selects a command.
type Resolution struct {
	Speed       Speed
	Direction   Direction
	Oscillating bool
}

// Resolve picks the command for r.
//
// Precedence: off, then oscillate, then the level entry under r.Direction
// (or "default" when r.Direction is empty). Returns ErrNoMatchingCommand
// when the selected entry does not exist.
func (t *CommandTable) Resolve(r Resolution) (Command, error) {
	if r.Speed == SpeedOff {
		return t.off, nil
	}

	if r.Oscillating {
		if t.oscillate == nil {
			return nil, fmt.Errorf("%w: oscillate", ErrNoMatchingCommand)
		}
		return t.oscillate, nil
	}

	dir := r.Direction
	if dir == "" {
		dir = DirectionDefault
	}

	cmd, ok := t.levels[dir][r.Speed]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoMatchingCommand, dir, r.Speed)
	}
	return cmd, nil
}

func (t *CommandTable) hasDirections() bool {
	_, fwd := t.levels[DirectionForward]
	_, rev := t.levels[DirectionReverse]
	return fwd && rev
}

func buildCommandTable(raw map[string]json.RawMessage, speeds []Speed) (*CommandTable, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: commands missing", ErrInvalidDefinition)
	}

	t := &CommandTable{levels: make(map[Direction]map[Speed]Command)}

	offRaw, ok := raw[keyOff]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q command", ErrInvalidDefinition, keyOff)
	}
	off, err := decodeCommand(offRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q command: %w", ErrInvalidDefinition, keyOff, err)
	}
	t.off = off

	if oscRaw, ok := raw[keyOscillate]; ok {
		osc, err := decodeCommand(oscRaw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q command: %w", ErrInvalidDefinition, keyOscillate, err)
		}
		t.oscillate = osc
	}

	for _, dir := range []Direction{DirectionForward, DirectionReverse, DirectionDefault} {
		dirRaw, ok := raw[string(dir)]
		if !ok {
			continue
		}
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(dirRaw, &entries); err != nil {
			return nil, fmt.Errorf("%w: %q must map speeds to commands: %w", ErrInvalidDefinition, dir, err)
		}
		levels := make(map[Speed]Command, len(entries))
		for name, entry := range entries {
			cmd, err := decodeCommand(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %s/%s command: %w", ErrInvalidDefinition, dir, name, err)
			}
			levels[Speed(name)] = cmd
		}
		t.levels[dir] = levels
	}

	required := []Direction{DirectionDefault}
	if t.hasDirections() {
		required = []Direction{DirectionForward, DirectionReverse}
	}
	for _, dir := range required {
		levels, ok := t.levels[dir]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q commands", ErrInvalidDefinition, dir)
		}
		for _, s := range speeds {
			if _, ok := levels[s]; !ok {
				return nil, fmt.Errorf("%w: missing %s/%s command", ErrInvalidDefinition, dir, s)
			}
		}
	}

	return t, nil
}
