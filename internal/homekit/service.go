package homekit

import (
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
)

// HAP enumerations used by the FanV2 service.
const (
	activeInactive = 0
	activeActive   = 1

	rotationClockwise        = 0
	rotationCounterClockwise = 1

	swingDisabled = 0
	swingEnabled  = 1
)

// fanService is a FanV2 service. Optional characteristics are nil when the
// device cannot do them.
type fanService struct {
	*service.S

	Active            *characteristic.Active
	RotationSpeed     *characteristic.RotationSpeed
	RotationDirection *characteristic.RotationDirection
	SwingMode         *characteristic.SwingMode
}

// newFanService builds the service for a fan with speedCount levels.
// RotationSpeed steps so that each slider stop is one level.
func newFanService(speedCount int, direction, swing bool) *fanService {
	s := fanService{}
	s.S = service.New(service.TypeFanV2)

	s.Active = characteristic.NewActive()
	s.AddC(s.Active.C)

	s.RotationSpeed = characteristic.NewRotationSpeed()
	if speedCount > 0 {
		s.RotationSpeed.SetStepValue(100 / float64(speedCount))
	}
	s.AddC(s.RotationSpeed.C)

	if direction {
		s.RotationDirection = characteristic.NewRotationDirection()
		s.AddC(s.RotationDirection.C)
	}

	if swing {
		s.SwingMode = characteristic.NewSwingMode()
		s.AddC(s.SwingMode.C)
	}

	return &s
}
