package fan

// Percentages are mapped onto levels by splitting 1..100 into len(speeds)
// equal buckets. Level i (0-based) reports (i+1)*100/n, the top of its
// bucket, so level -> percentage -> level round-trips.

// percentageToSpeed returns the level for pct. pct 0 maps to SpeedOff.
func percentageToSpeed(speeds []Speed, pct int) Speed {
	if pct <= 0 {
		return SpeedOff
	}
	n := len(speeds)
	for i, s := range speeds {
		if pct <= (i+1)*100/n {
			return s
		}
	}
	return speeds[n-1]
}

// speedToPercentage returns the reported percentage for s.
// ok is false for SpeedUnknown and undeclared levels.
func speedToPercentage(speeds []Speed, s Speed) (pct int, ok bool) {
	if s == SpeedOff {
		return 0, true
	}
	for i, sp := range speeds {
		if sp == s {
			return (i + 1) * 100 / len(speeds), true
		}
	}
	return 0, false
}

// PercentageStep is the percentage width of one speed level.
func (d *DeviceDefinition) PercentageStep() float64 {
	return 100 / float64(len(d.Speeds))
}
