package pipeline

import (
	"time"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

// DuplicateResult reports whether a candidate repeats a recent submission
// from the same vessel.
type DuplicateResult struct {
	IsDuplicate    bool
	DistanceMeters float64
	TimeDelta      time.Duration
}

// CheckDuplicate scans the submitter's recent readings, most recent first,
// and flags the candidate when a prior reading falls inside both the time
// window and the duplicate radius. First match wins. A duplicate is a
// warning, never a rejection.
func CheckDuplicate(c reading.CandidateReading, recent []reading.CandidateReading, window time.Duration) DuplicateResult {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}

	for _, prior := range recent {
		delta := time.Duration(c.TimestampMs-prior.TimestampMs) * time.Millisecond
		if delta < 0 {
			delta = -delta
		}
		if delta > window {
			// Recent is reverse chronological; everything further back is older.
			break
		}
		dist := geo.DistanceMeters(c.Position, prior.Position)
		if dist < DefaultDuplicateRadius {
			return DuplicateResult{
				IsDuplicate:    true,
				DistanceMeters: dist,
				TimeDelta:      delta,
			}
		}
	}
	return DuplicateResult{}
}
