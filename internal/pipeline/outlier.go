package pipeline

import (
	"math"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

// OutlierResult reports how a candidate compares to its spatial neighborhood.
type OutlierResult struct {
	IsOutlier  bool
	ExpectedLo float64
	ExpectedHi float64
	SampleSize int
}

// CheckOutlier compares the candidate's depth against the mean and population
// standard deviation of its neighborhood sample. With fewer than
// DefaultMinNeighborhoodSize neighbors there is no statistical basis, so the
// reading is admitted as not-an-outlier. Crowdsourced data stays admissible
// even when surprising; an outlier only degrades confidence.
func CheckOutlier(c reading.CandidateReading, neighborhood []reading.ProcessedDepthReading) OutlierResult {
	n := len(neighborhood)
	if n < DefaultMinNeighborhoodSize {
		return OutlierResult{SampleSize: n}
	}

	var sum float64
	for _, r := range neighborhood {
		sum += r.Corrected
	}
	mean := sum / float64(n)

	var sqDiff float64
	for _, r := range neighborhood {
		d := r.Corrected - mean
		sqDiff += d * d
	}
	stddev := math.Sqrt(sqDiff / float64(n))

	lo := mean - 2*stddev
	if lo < 0 {
		lo = 0
	}
	hi := mean + 2*stddev

	return OutlierResult{
		IsOutlier:  c.DepthMeters < lo || c.DepthMeters > hi,
		ExpectedLo: lo,
		ExpectedHi: hi,
		SampleSize: n,
	}
}
