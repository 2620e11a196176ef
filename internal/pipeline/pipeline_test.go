package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/history"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/safety"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/tide"
)

type fakeNeighbors struct {
	sample []reading.ProcessedDepthReading
	err    error
	calls  int
}

func (f *fakeNeighbors) QueryRadius(ctx context.Context, center geo.Point, radiusMeters float64, since time.Time) ([]reading.ProcessedDepthReading, error) {
	f.calls++
	return f.sample, f.err
}

type fakeTides struct {
	station *tide.Station
	level   float64
	err     error
}

func (f *fakeTides) NearestStation(ctx context.Context, lat, lon, maxDistanceMeters float64) (*tide.Station, error) {
	return f.station, f.err
}

func (f *fakeTides) LevelAt(ctx context.Context, stationID string, at time.Time) (float64, error) {
	return f.level, f.err
}

func newTestPipeline(neighbors NeighborhoodSource, tides tide.Source) *Pipeline {
	return New(Options{
		Rules:   DefaultRules(),
		Profile: safety.VesselProfile{DraftMeters: 1.5, SafetyMarginMeters: 0.5},
	}, neighbors, tides, zerolog.Nop())
}

func TestProcessRejectsStructuralErrors(t *testing.T) {
	p := newTestPipeline(nil, nil)
	ix := history.NewIndex("vessel-1", history.Options{})

	c := baseCandidate(time.Now())
	c.DepthMeters = -1

	processed, result := p.Process(context.Background(), ix, c)
	if processed != nil {
		t.Fatal("invalid reading must not produce a processed reading")
	}
	if result.IsValid || len(result.Errors) == 0 {
		t.Fatal("result must carry the structural errors")
	}
	if ix.Len() != 0 {
		t.Fatal("rejected readings must not enter the history index")
	}
}

func TestProcessCleanReadingNoCollaborators(t *testing.T) {
	p := newTestPipeline(nil, nil)
	ix := history.NewIndex("vessel-1", history.Options{})

	processed, result := p.Process(context.Background(), ix, baseCandidate(time.Now()))
	if processed == nil {
		t.Fatalf("clean reading must process: %v", result.Errors)
	}
	if !almostEqual(processed.Confidence, 0.88) {
		t.Fatalf("expected confidence 0.88, got %f", processed.Confidence)
	}
	if processed.Tide != nil {
		t.Fatal("no tide source: no correction should be applied")
	}
	if processed.Corrected != 15.5 {
		t.Fatalf("raw depth should carry through, got %f", processed.Corrected)
	}
	if processed.Safety != reading.SafetySafe {
		t.Fatalf("15.5m for a 1.5m draft should be safe, got %s", processed.Safety)
	}
	if ix.Len() != 1 {
		t.Fatal("accepted reading must be appended to history")
	}
}

func TestProcessFlagsDuplicateBurst(t *testing.T) {
	p := newTestPipeline(nil, nil)
	ix := history.NewIndex("vessel-1", history.Options{})
	now := time.Now()

	first, _ := p.Process(context.Background(), ix, baseCandidate(now))
	if first == nil || first.Meta.DuplicateOf {
		t.Fatal("first reading must pass without duplicate flag")
	}

	second := baseCandidate(now.Add(5 * time.Second))
	processed, result := p.Process(context.Background(), ix, second)
	if processed == nil {
		t.Fatal("duplicate suspicion must not reject")
	}
	if !processed.Meta.DuplicateOf {
		t.Fatal("second reading at same spot within window must flag duplicate")
	}
	if !hasWarningContaining(result.Warnings, "duplicate") {
		t.Fatalf("expected duplicate warning, got %v", result.Warnings)
	}
	if processed.Confidence >= first.Confidence {
		t.Fatal("duplicate warning must reduce confidence")
	}
}

func TestProcessOutlierStillValid(t *testing.T) {
	neighbors := &fakeNeighbors{sample: []reading.ProcessedDepthReading{
		{Corrected: 18}, {Corrected: 19}, {Corrected: 20}, {Corrected: 21}, {Corrected: 22},
	}}
	p := newTestPipeline(neighbors, nil)

	c := baseCandidate(time.Now())
	c.DepthMeters = 2

	processed, result := p.Process(context.Background(), nil, c)
	if processed == nil || !result.IsValid {
		t.Fatal("outlier must remain admissible")
	}
	if !processed.Meta.OutlierFlagged {
		t.Fatal("2m against a 20m neighborhood must be flagged")
	}
	if !hasWarningContaining(result.Warnings, "expected range") {
		t.Fatalf("expected outlier warning, got %v", result.Warnings)
	}
}

func TestProcessNeighborhoodFailureDegrades(t *testing.T) {
	neighbors := &fakeNeighbors{err: errors.New("store offline")}
	p := newTestPipeline(neighbors, nil)

	processed, result := p.Process(context.Background(), nil, baseCandidate(time.Now()))
	if processed == nil || !result.IsValid {
		t.Fatal("neighborhood failure must not reject the reading")
	}
	if processed.Meta.OutlierFlagged {
		t.Fatal("no outlier flag without a neighborhood")
	}
	if !hasNoteContaining(processed.Meta.CorrectionNotes, "neighborhood unavailable") {
		t.Fatalf("expected degradation note, got %v", processed.Meta.CorrectionNotes)
	}
}

func TestProcessNeighborhoodCacheHit(t *testing.T) {
	neighbors := &fakeNeighbors{}
	p := newTestPipeline(neighbors, nil)
	ix := history.NewIndex("vessel-1", history.Options{})
	now := time.Now()

	p.Process(context.Background(), ix, baseCandidate(now))
	p.Process(context.Background(), ix, baseCandidate(now.Add(time.Minute)))

	if neighbors.calls != 1 {
		t.Fatalf("second lookup at same cell should hit the cache, got %d queries", neighbors.calls)
	}
}

func TestProcessTideCorrectionApplied(t *testing.T) {
	tides := &fakeTides{
		station: &tide.Station{ID: "st-1", DatumMeters: 1.2},
		level:   2.0,
	}
	p := newTestPipeline(nil, tides)

	processed, _ := p.Process(context.Background(), nil, baseCandidate(time.Now()))
	if processed == nil || processed.Tide == nil {
		t.Fatal("tide correction should be applied")
	}
	want := 15.5 + 2.0 - 1.2
	if !almostEqual(processed.Corrected, want) {
		t.Fatalf("corrected depth: expected %f, got %f", want, processed.Corrected)
	}
	if processed.Tide.StationID != "st-1" {
		t.Fatalf("station id should be recorded, got %q", processed.Tide.StationID)
	}
	// Correction magnitude 0.8m shrinks the multiplier below 1.
	if processed.Confidence >= 0.88 {
		t.Fatalf("tide multiplier should reduce confidence, got %f", processed.Confidence)
	}
}

func TestProcessNoStationInRange(t *testing.T) {
	p := newTestPipeline(nil, &fakeTides{})

	processed, _ := p.Process(context.Background(), nil, baseCandidate(time.Now()))
	if processed == nil {
		t.Fatal("missing tide station must never block ingestion")
	}
	if processed.Tide != nil {
		t.Fatal("no correction without a station")
	}
	if !hasNoteContaining(processed.Meta.CorrectionNotes, "no tide data") {
		t.Fatalf("expected no-tide-data note, got %v", processed.Meta.CorrectionNotes)
	}
}

func TestProcessUnsafeClassification(t *testing.T) {
	// Draft 3.2, margin 0.5, corrected depth 3.0: clearance -0.2 is unsafe.
	p := New(Options{
		Rules:   DefaultRules(),
		Profile: safety.VesselProfile{DraftMeters: 3.2, SafetyMarginMeters: 0.5},
	}, nil, nil, zerolog.Nop())

	c := baseCandidate(time.Now())
	c.DepthMeters = 3.0

	processed, _ := p.Process(context.Background(), nil, c)
	if processed == nil {
		t.Fatal("reading should process")
	}
	if processed.Safety != reading.SafetyUnsafe {
		t.Fatalf("expected unsafe, got %s", processed.Safety)
	}
}

func hasWarningContaining(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func hasNoteContaining(notes []string, substr string) bool {
	for _, n := range notes {
		if strings.Contains(n, substr) {
			return true
		}
	}
	return false
}
