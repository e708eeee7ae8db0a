package fan

import (
	"fmt"
	"testing"
)

func TestPercentageToSpeed(t *testing.T) {
	three := []Speed{"low", "medium", "high"}
	four := []Speed{"1", "2", "3", "4"}

	tests := []struct {
		speeds []Speed
		pct    int
		want   Speed
	}{
		{three, 0, SpeedOff},
		{three, 1, "low"},
		{three, 33, "low"},
		{three, 34, "medium"},
		{three, 66, "medium"},
		{three, 67, "high"},
		{three, 100, "high"},
		{four, 25, "1"},
		{four, 26, "2"},
		{four, 50, "2"},
		{four, 75, "3"},
		{four, 76, "4"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-speeds-%d", len(tt.speeds), tt.pct), func(t *testing.T) {
			if got := percentageToSpeed(tt.speeds, tt.pct); got != tt.want {
				t.Errorf("percentageToSpeed(%d) = %q, want %q", tt.pct, got, tt.want)
			}
		})
	}
}

func TestSpeedPercentageRoundTrip(t *testing.T) {
	for n := 1; n <= maxSpeeds; n++ {
		speeds := make([]Speed, n)
		for i := range speeds {
			speeds[i] = Speed(fmt.Sprintf("s%d", i))
		}
		for _, s := range speeds {
			pct, ok := speedToPercentage(speeds, s)
			if !ok {
				t.Fatalf("n=%d: speedToPercentage(%q) not ok", n, s)
			}
			if got := percentageToSpeed(speeds, pct); got != s {
				t.Fatalf("n=%d: %q -> %d -> %q", n, s, pct, got)
			}
		}
	}
}

func TestSpeedToPercentage_Special(t *testing.T) {
	speeds := []Speed{"low", "high"}

	if pct, ok := speedToPercentage(speeds, SpeedOff); !ok || pct != 0 {
		t.Errorf("off = (%d, %v), want (0, true)", pct, ok)
	}
	if _, ok := speedToPercentage(speeds, SpeedUnknown); ok {
		t.Error("unknown speed should have no percentage")
	}
	if _, ok := speedToPercentage(speeds, "turbo"); ok {
		t.Error("undeclared speed should have no percentage")
	}
}
