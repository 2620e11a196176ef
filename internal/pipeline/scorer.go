package pipeline

import "github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"

// Composite score weights. GPS accuracy dominates because position error
// directly displaces a depth reading on the chart.
const (
	weightGPS           = 0.4
	weightEnvironmental = 0.3
	weightConsistency   = 0.3
)

// Score computes the quality breakdown and final confidence for a candidate
// given the warnings and errors validation produced. Any error forces
// confidence to zero.
func Score(c reading.CandidateReading, warnings, errs []string) (reading.QualityScore, float64) {
	gps := clamp01((DefaultMaxGPSAccuracy - c.GPSAccuracy) / DefaultMaxGPSAccuracy)
	environmental := clamp01(1 - clamp01(c.Speed()/5))
	consistency := clamp01(1 - 0.5*float64(len(errs)) - 0.1*float64(len(warnings)))

	score := reading.QualityScore{
		GPSAccuracy:     gps,
		Environmental:   environmental,
		DataConsistency: consistency,
		Overall:         weightGPS*gps + weightEnvironmental*environmental + weightConsistency*consistency,
	}

	if len(errs) > 0 {
		return score, 0
	}

	damping := 1 - 0.1*float64(len(warnings))
	if damping < 0.5 {
		damping = 0.5
	}

	confidence := clamp01(score.Overall * c.Method.ConfidenceMultiplier() * damping)
	return score, confidence
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
