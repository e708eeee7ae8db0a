package influxdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Connect(config.InfluxDBConfig{Enabled: true, URL: srv.URL, Bucket: "fans"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_FakeServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     srv.URL,
		Token:   "t",
		Org:     "graylogic",
		Bucket:  "fans",
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	pct := 50
	c.WriteFanState(FanSample{FanID: "bedroom", Source: "command", Speed: "medium", On: true, Percentage: &pct})

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	// No-ops after close.
	c.Flush()
	c.WriteFanState(FanSample{FanID: "bedroom"})
}

func TestClose_Nil(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestFanStatePoint(t *testing.T) {
	pct := 66
	osc := true
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		sample  FanSample
		want    []string
		notWant []string
	}{
		{
			name: "running with all fields",
			sample: FanSample{
				FanID: "bedroom", Source: "command", Speed: "medium",
				On: true, Percentage: &pct, Oscillating: &osc, Time: ts,
			},
			want: []string{"fan_state,", "fan_id=bedroom", "source=command",
				"on=true", "percentage=66i", "oscillating=true", `speed="medium"`},
		},
		{
			name:    "remote on without level",
			sample:  FanSample{FanID: "office", Source: "sensor", Speed: "unknown", On: true, Time: ts},
			want:    []string{"fan_id=office", "source=sensor", "on=true"},
			notWant: []string{"percentage", "oscillating"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := write.PointToLineProtocol(fanStatePoint(tt.sample), time.Nanosecond)
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("line %q missing %q", line, w)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(line, nw) {
					t.Errorf("line %q should not contain %q", line, nw)
				}
			}
		})
	}
}
