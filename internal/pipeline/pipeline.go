// Package pipeline implements the depth reading quality and correction
// pipeline: structural validation, duplicate and outlier detection, tide
// correction, quality scoring, and safety classification.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/history"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/safety"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/tide"
)

// NeighborhoodSource supplies recent readings around a point, normally the
// canonical spatial store.
type NeighborhoodSource interface {
	QueryRadius(ctx context.Context, center geo.Point, radiusMeters float64, since time.Time) ([]reading.ProcessedDepthReading, error)
}

// Options configure a pipeline instance.
type Options struct {
	Rules              Rules
	Profile            safety.VesselProfile
	MaxStationDistance float64
	NeighborhoodSince  time.Duration
	Now                func() time.Time
}

// Pipeline processes candidate readings. Tide and neighborhood lookups are
// the only I/O; their failures degrade the result instead of rejecting it.
type Pipeline struct {
	rules     Rules
	profile   safety.VesselProfile
	neighbors NeighborhoodSource
	tides     tide.Source
	logger    zerolog.Logger

	maxStationDistance float64
	neighborhoodSince  time.Duration
	now                func() time.Time
}

// New constructs a pipeline. neighbors and tides may be nil, in which case
// outlier detection and tide correction are skipped with a note.
func New(opts Options, neighbors NeighborhoodSource, tides tide.Source, logger zerolog.Logger) *Pipeline {
	maxDist := opts.MaxStationDistance
	if maxDist <= 0 {
		maxDist = tide.DefaultMaxStationDistance
	}
	since := opts.NeighborhoodSince
	if since <= 0 {
		since = 30 * 24 * time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		rules:              opts.Rules.withDefaults(),
		profile:            opts.Profile,
		neighbors:          neighbors,
		tides:              tides,
		logger:             logger.With().Str("component", "pipeline").Logger(),
		maxStationDistance: maxDist,
		neighborhoodSince:  since,
		now:                now,
	}
}

// Rules returns the active rule set.
func (p *Pipeline) Rules() Rules {
	return p.rules
}

// Profile returns the vessel profile readings are classified against.
func (p *Pipeline) Profile() safety.VesselProfile {
	return p.profile
}

// Process runs one candidate through the full pipeline. The submitter's
// history index must be the session-owned instance; it is appended to only
// after the candidate clears validation so a burst of near-duplicates cannot
// all pass independently.
//
// On structural failure the returned reading is nil and the result carries
// the errors. Transport failures in tide or neighborhood lookups never fail
// the call; they are recorded as correction notes.
func (p *Pipeline) Process(ctx context.Context, ix *history.Index, c reading.CandidateReading) (*reading.ProcessedDepthReading, reading.ValidationResult) {
	result := validateAt(c, p.rules, p.now())
	if !result.IsValid {
		p.logger.Debug().Strs("errors", result.Errors).Str("submitter", c.SubmitterID).Msg("reading rejected")
		return nil, result
	}

	meta := reading.ProcessingMetadata{
		Version:     reading.MetadataVersion,
		ProcessedAt: p.now().UTC(),
	}

	if ix != nil {
		dup := CheckDuplicate(c, ix.Recent(), p.rules.DuplicateWindow)
		if dup.IsDuplicate {
			meta.DuplicateOf = true
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"possible duplicate: %.1fm and %s from a recent reading",
				dup.DistanceMeters, dup.TimeDelta.Round(time.Second)))
		}
	}

	outlier := p.checkNeighborhood(ctx, ix, c, &meta)
	if outlier.IsOutlier {
		meta.OutlierFlagged = true
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"depth %.1fm outside expected range [%.1f, %.1f] of %d nearby readings",
			c.DepthMeters, outlier.ExpectedLo, outlier.ExpectedHi, outlier.SampleSize))
	}

	// Rescore with the detection warnings included.
	score, confidence := Score(c, result.Warnings, result.Errors)
	result.Score = score
	result.Confidence = confidence

	corrected := c.DepthMeters
	correction := p.correctTide(ctx, c, &meta)
	if correction != nil {
		corrected = correction.CorrectedDepthMeters
		confidence = clamp01(confidence * correction.ConfidenceMultiplier)
		result.Confidence = confidence
	}

	processed := &reading.ProcessedDepthReading{
		ID:          uuid.NewString(),
		Candidate:   c,
		Corrected:   corrected,
		Tide:        correction,
		Score:       score,
		Confidence:  confidence,
		Safety:      safety.StatusFor(&corrected, p.profile),
		Reliability: reading.ReliabilityFor(score.Overall),
		Meta:        meta,
	}

	if ix != nil {
		ix.Append(c)
	}

	p.logger.Debug().
		Str("reading", processed.ID).
		Float64("corrected", corrected).
		Float64("confidence", confidence).
		Str("safety", string(processed.Safety)).
		Msg("reading processed")

	return processed, result
}

// checkNeighborhood fetches the spatial neighborhood (cache first) and runs
// outlier detection. Query failures degrade to not-an-outlier.
func (p *Pipeline) checkNeighborhood(ctx context.Context, ix *history.Index, c reading.CandidateReading, meta *reading.ProcessingMetadata) OutlierResult {
	if p.neighbors == nil {
		return OutlierResult{}
	}

	var sample []reading.ProcessedDepthReading
	cached := false
	if ix != nil {
		sample, cached = ix.CachedNeighborhood(c.Position)
	}
	if !cached {
		var err error
		since := p.now().Add(-p.neighborhoodSince)
		sample, err = p.neighbors.QueryRadius(ctx, c.Position, DefaultNeighborhoodRadius, since)
		if err != nil {
			p.logger.Warn().Err(err).Msg("neighborhood query failed, skipping outlier check")
			meta.CorrectionNotes = append(meta.CorrectionNotes, "neighborhood unavailable, outlier check skipped")
			return OutlierResult{}
		}
		if ix != nil {
			ix.StoreNeighborhood(c.Position, sample)
		}
	}

	return CheckOutlier(c, sample)
}

// correctTide applies the chart-datum correction when a station is in range.
// Any failure here skips correction and proceeds with the raw depth.
func (p *Pipeline) correctTide(ctx context.Context, c reading.CandidateReading, meta *reading.ProcessingMetadata) *reading.TideCorrection {
	if p.tides == nil {
		meta.CorrectionNotes = append(meta.CorrectionNotes, "no tide source configured")
		return nil
	}

	station, err := p.tides.NearestStation(ctx, c.Position.Lat, c.Position.Lon, p.maxStationDistance)
	if err != nil {
		p.logger.Warn().Err(err).Msg("tide station lookup failed, using raw depth")
		meta.CorrectionNotes = append(meta.CorrectionNotes, "tide lookup failed, raw depth used")
		return nil
	}
	if station == nil {
		meta.CorrectionNotes = append(meta.CorrectionNotes, "no tide data: no station in range")
		return nil
	}

	level, err := p.tides.LevelAt(ctx, station.ID, c.Time())
	if err != nil {
		p.logger.Warn().Err(err).Str("station", station.ID).Msg("tide level lookup failed, using raw depth")
		meta.CorrectionNotes = append(meta.CorrectionNotes, "tide level unavailable, raw depth used")
		return nil
	}

	correction := tide.Apply(c.DepthMeters, level, station.DatumMeters)
	correction.StationID = station.ID
	meta.CorrectionNotes = append(meta.CorrectionNotes, fmt.Sprintf(
		"tide corrected via station %s (level %.2fm, datum %.2fm)", station.ID, level, station.DatumMeters))
	return &correction
}
