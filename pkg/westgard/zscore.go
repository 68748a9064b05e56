package westgard

import "math"

// ZScore standardizes one raw measurement against its reference mean/SD.
//
// A missing measurement (NaN) or an unusable SD (NaN or zero — nothing to
// standardize against) yields NaN, which every rule window treats as absence
// of evidence rather than a violation. No clamping is applied here; chart
// display ranges are the presentation layer's concern.
func ZScore(value, mean, sd float64) float64 {
	if math.IsNaN(value) {
		return math.NaN()
	}
	if math.IsNaN(sd) || sd == 0 {
		return math.NaN()
	}
	return (value - mean) / sd
}
