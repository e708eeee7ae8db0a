package homekit

import (
	"context"
	"math"
	"time"

	"github.com/brutella/hap/accessory"

	"github.com/nerrad567/gray-logic-irfan/internal/fan"
)

// remoteUpdateTimeout bounds a fan operation triggered from a Home app.
const remoteUpdateTimeout = 10 * time.Second

// fanAccessory binds one fan to its HAP accessory.
type fanAccessory struct {
	*accessory.A

	svc        *fanService
	fan        *fan.Fan
	speedCount int
	logger     Logger
}

func newFanAccessory(f *fan.Fan, logger Logger) *fanAccessory {
	info := f.Info()

	model := "IR/RF fan"
	if len(info.SupportedModels) > 0 {
		model = info.SupportedModels[0]
	}
	name := info.Name
	if name == "" {
		name = info.ID
	}

	a := &fanAccessory{
		A: accessory.New(accessory.Info{
			Name:         name,
			SerialNumber: info.ID,
			Manufacturer: info.Manufacturer,
			Model:        model,
		}, accessory.TypeFan),
		svc:        newFanService(info.SpeedCount, info.SupportsDirection, info.SupportsOscillation),
		fan:        f,
		speedCount: info.SpeedCount,
		logger:     logger,
	}
	a.AddS(a.svc.S)

	a.svc.Active.OnValueRemoteUpdate(a.setActive)
	a.svc.RotationSpeed.OnValueRemoteUpdate(a.setRotationSpeed)
	if a.svc.RotationDirection != nil {
		a.svc.RotationDirection.OnValueRemoteUpdate(a.setRotationDirection)
	}
	if a.svc.SwingMode != nil {
		a.svc.SwingMode.OnValueRemoteUpdate(a.setSwingMode)
	}

	a.update(f.CurrentState())
	return a
}

func (a *fanAccessory) setActive(v int) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteUpdateTimeout)
	defer cancel()

	var err error
	if v == activeActive {
		err = a.fan.TurnOn(ctx, nil)
	} else {
		err = a.fan.TurnOff(ctx)
	}
	a.logResult("active", v, err)
}

func (a *fanAccessory) setRotationSpeed(v float64) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteUpdateTimeout)
	defer cancel()

	pct := a.levelPercentage(v)
	err := a.fan.SetPercentage(ctx, pct)
	a.logResult("rotation_speed", pct, err)
}

// levelPercentage snaps a slider value to the nearest level's percentage.
// Any value above zero selects at least the lowest level.
func (a *fanAccessory) levelPercentage(v float64) int {
	if v <= 0 || a.speedCount == 0 {
		return 0
	}
	level := int(math.Round(v * float64(a.speedCount) / 100))
	level = min(max(level, 1), a.speedCount)
	return level * 100 / a.speedCount
}

func (a *fanAccessory) setRotationDirection(v int) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteUpdateTimeout)
	defer cancel()

	dir := fan.DirectionForward
	if v == rotationCounterClockwise {
		dir = fan.DirectionReverse
	}
	err := a.fan.SetDirection(ctx, dir)
	a.logResult("rotation_direction", dir, err)
}

func (a *fanAccessory) setSwingMode(v int) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteUpdateTimeout)
	defer cancel()

	err := a.fan.Oscillate(ctx, v == swingEnabled)
	a.logResult("swing_mode", v, err)
}

func (a *fanAccessory) logResult(characteristic string, value any, err error) {
	if err != nil {
		a.logger.Warn("homekit update rejected",
			"fan_id", a.fan.ID(), "characteristic", characteristic, "value", value, "error", err)
		return
	}
	a.logger.Debug("homekit update applied",
		"fan_id", a.fan.ID(), "characteristic", characteristic, "value", value)
}

// update mirrors a snapshot onto the characteristics. An unknown level
// leaves RotationSpeed at its last value.
func (a *fanAccessory) update(snap fan.Snapshot) {
	if snap.On {
		a.svc.Active.SetValue(activeActive)
	} else {
		a.svc.Active.SetValue(activeInactive)
	}

	if snap.Percentage != nil && *snap.Percentage > 0 {
		a.svc.RotationSpeed.SetValue(float64(*snap.Percentage))
	}

	if a.svc.RotationDirection != nil && snap.Direction != nil {
		if *snap.Direction == fan.DirectionReverse {
			a.svc.RotationDirection.SetValue(rotationCounterClockwise)
		} else {
			a.svc.RotationDirection.SetValue(rotationClockwise)
		}
	}

	if a.svc.SwingMode != nil && snap.Oscillating != nil {
		if *snap.Oscillating {
			a.svc.SwingMode.SetValue(swingEnabled)
		} else {
			a.svc.SwingMode.SetValue(swingDisabled)
		}
	}
}
