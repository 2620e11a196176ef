// Package tide supplies tide station lookup and chart-datum correction.
// Station data comes from a NOAA-style prediction service; heights arrive as
// string-encoded decimals on the wire.
package tide

import (
	"context"
	"time"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

// DefaultMaxStationDistance is how far away a tide station may be before
// correction is skipped entirely.
const DefaultMaxStationDistance = 50000.0

// Station describes a tide station near a reading location.
type Station struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Position       geo.Point `json:"position"`
	DistanceMeters float64   `json:"distance_meters"`
	DatumMeters    float64   `json:"chart_datum_meters"`
}

// Source retrieves tide stations and water levels. Implementations must
// return (nil, nil) from NearestStation when no station is in range rather
// than an error, so the pipeline can degrade gracefully.
type Source interface {
	NearestStation(ctx context.Context, lat, lon, maxDistanceMeters float64) (*Station, error)
	LevelAt(ctx context.Context, stationID string, at time.Time) (float64, error)
}

// Apply computes the chart-datum correction for a raw depth. Corrected depth
// never goes below zero, and the confidence multiplier shrinks with the
// correction magnitude down to a floor of 0.7: station distance and time
// interpolation error both grow with the size of the adjustment.
func Apply(depthMeters, tideLevelMeters, chartDatumMeters float64) reading.TideCorrection {
	corrected := depthMeters + tideLevelMeters - chartDatumMeters
	if corrected < 0 {
		corrected = 0
	}

	magnitude := tideLevelMeters - chartDatumMeters
	if magnitude < 0 {
		magnitude = -magnitude
	}
	multiplier := 1 - magnitude/3
	if multiplier < 0.7 {
		multiplier = 0.7
	}

	return reading.TideCorrection{
		TideLevelMeters:      tideLevelMeters,
		ChartDatumMeters:     chartDatumMeters,
		CorrectedDepthMeters: corrected,
		ConfidenceMultiplier: multiplier,
	}
}
