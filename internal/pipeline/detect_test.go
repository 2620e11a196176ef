package pipeline

import (
	"testing"
	"time"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

func readingAt(p geo.Point, ts time.Time, depth float64) reading.CandidateReading {
	return reading.CandidateReading{
		Position:    p,
		DepthMeters: depth,
		TimestampMs: ts.UnixMilli(),
		SubmitterID: "vessel-1",
	}
}

func TestDuplicateWithinWindowAndRadius(t *testing.T) {
	now := time.Now()
	p := geo.Point{Lat: 47.6, Lon: -122.3}

	prior := readingAt(p, now.Add(-20*time.Second), 10)
	candidate := readingAt(p, now, 10)

	res := CheckDuplicate(candidate, []reading.CandidateReading{prior}, DefaultDuplicateWindow)
	if !res.IsDuplicate {
		t.Fatal("same position 20s apart should flag duplicate")
	}
	if res.DistanceMeters >= DefaultDuplicateRadius {
		t.Fatalf("distance should be under %fm, got %f", DefaultDuplicateRadius, res.DistanceMeters)
	}
	if res.TimeDelta != 20*time.Second {
		t.Fatalf("expected 20s delta, got %s", res.TimeDelta)
	}
}

func TestDuplicateOutsideWindowNotFlagged(t *testing.T) {
	now := time.Now()
	p := geo.Point{Lat: 47.6, Lon: -122.3}

	prior := readingAt(p, now.Add(-35*time.Second), 10)
	candidate := readingAt(p, now, 10)

	res := CheckDuplicate(candidate, []reading.CandidateReading{prior}, DefaultDuplicateWindow)
	if res.IsDuplicate {
		t.Fatal("35s apart must not flag duplicate with a 30s window")
	}
}

func TestDuplicateOutsideRadiusNotFlagged(t *testing.T) {
	now := time.Now()
	prior := readingAt(geo.Point{Lat: 47.6, Lon: -122.3}, now.Add(-5*time.Second), 10)
	// ~111m north.
	candidate := readingAt(geo.Point{Lat: 47.601, Lon: -122.3}, now, 10)

	res := CheckDuplicate(candidate, []reading.CandidateReading{prior}, DefaultDuplicateWindow)
	if res.IsDuplicate {
		t.Fatal("readings 111m apart must not flag duplicate")
	}
}

func TestDuplicateFirstMatchWins(t *testing.T) {
	now := time.Now()
	p := geo.Point{Lat: 47.6, Lon: -122.3}

	// Most recent first, as the history index returns them.
	recent := []reading.CandidateReading{
		readingAt(p, now.Add(-5*time.Second), 10),
		readingAt(p, now.Add(-10*time.Second), 10),
	}

	res := CheckDuplicate(readingAt(p, now, 10), recent, DefaultDuplicateWindow)
	if !res.IsDuplicate || res.TimeDelta != 5*time.Second {
		t.Fatalf("expected first (most recent) match at 5s, got %+v", res)
	}
}

func TestDuplicateEmptyHistory(t *testing.T) {
	now := time.Now()
	res := CheckDuplicate(readingAt(geo.Point{Lat: 1, Lon: 1}, now, 5), nil, DefaultDuplicateWindow)
	if res.IsDuplicate {
		t.Fatal("empty history cannot produce a duplicate")
	}
}

func neighborsWithDepths(depths ...float64) []reading.ProcessedDepthReading {
	out := make([]reading.ProcessedDepthReading, len(depths))
	for i, d := range depths {
		out[i] = reading.ProcessedDepthReading{Corrected: d}
	}
	return out
}

func TestOutlierInsufficientSampleIsConservative(t *testing.T) {
	c := reading.CandidateReading{DepthMeters: 500}
	for _, sample := range [][]reading.ProcessedDepthReading{
		nil,
		neighborsWithDepths(20),
		neighborsWithDepths(20, 21),
	} {
		res := CheckOutlier(c, sample)
		if res.IsOutlier {
			t.Fatalf("sample size %d must never flag an outlier", len(sample))
		}
		if res.SampleSize != len(sample) {
			t.Fatalf("expected sample size %d, got %d", len(sample), res.SampleSize)
		}
	}
}

func TestOutlierOutsideTwoSigma(t *testing.T) {
	// Five neighbors averaging 20m with population stddev 2: band is [16, 24].
	sample := neighborsWithDepths(18, 19, 20, 21, 22)

	inside := CheckOutlier(reading.CandidateReading{DepthMeters: 20}, sample)
	if inside.IsOutlier {
		t.Fatal("mean depth must not be an outlier")
	}

	outside := CheckOutlier(reading.CandidateReading{DepthMeters: 2}, sample)
	if !outside.IsOutlier {
		t.Fatal("2m against a 20m neighborhood must flag outlier")
	}
	if outside.ExpectedLo <= 0 || outside.ExpectedHi <= outside.ExpectedLo {
		t.Fatalf("implausible expected range [%f, %f]", outside.ExpectedLo, outside.ExpectedHi)
	}
}

func TestOutlierRangeFloorsAtZero(t *testing.T) {
	// Shallow neighborhood where mean - 2*sigma would go negative.
	sample := neighborsWithDepths(0.5, 1, 3, 5, 0.2)
	res := CheckOutlier(reading.CandidateReading{DepthMeters: 0}, sample)
	if res.ExpectedLo < 0 {
		t.Fatalf("expected range must floor at 0, got %f", res.ExpectedLo)
	}
	if res.IsOutlier {
		t.Fatal("0m depth inside floored range must not be an outlier")
	}
}
