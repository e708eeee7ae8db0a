package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementFanState is the measurement holding fan state samples.
const MeasurementFanState = "fan_state"

// FanSample is one observation of a fan's state.
type FanSample struct {
	FanID string

	// Source is what caused the change: command, sensor or restore.
	Source string

	Speed string
	On    bool

	// Percentage is nil when the fan runs at an unknown level.
	Percentage *int

	// Oscillating is nil for fans that cannot oscillate.
	Oscillating *bool

	Time time.Time
}

// WriteFanState queues a fan_state point. It is a no-op when disconnected.
func (c *Client) WriteFanState(s FanSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(fanStatePoint(s))
}

func fanStatePoint(s FanSample) *write.Point {
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := map[string]interface{}{
		"on":    s.On,
		"speed": s.Speed,
	}
	if s.Percentage != nil {
		fields["percentage"] = *s.Percentage
	}
	if s.Oscillating != nil {
		fields["oscillating"] = *s.Oscillating
	}

	return write.NewPoint(MeasurementFanState,
		map[string]string{
			"fan_id": s.FanID,
			"source": s.Source,
		},
		fields,
		ts,
	)
}
