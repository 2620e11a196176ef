package pipeline

import (
	"fmt"
	"time"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

// Validate runs the stateless structural and range checks on one candidate.
// Errors block the reading outright; warnings only degrade its confidence.
// Pure function, no I/O. The returned result carries the quality score and
// final confidence per Score.
func Validate(c reading.CandidateReading, rules Rules) reading.ValidationResult {
	return validateAt(c, rules, time.Now())
}

// validateAt is Validate with an injectable clock for the staleness check.
func validateAt(c reading.CandidateReading, rules Rules, now time.Time) reading.ValidationResult {
	rules = rules.withDefaults()

	var errs, warnings []string

	if c.DepthMeters < rules.MinDepthMeters || c.DepthMeters > rules.MaxDepthMeters {
		errs = append(errs, fmt.Sprintf(
			"depth %.2fm outside allowed range [%.0f, %.0f]",
			c.DepthMeters, rules.MinDepthMeters, rules.MaxDepthMeters))
	}

	if !geo.ValidCoordinates(c.Position.Lat, c.Position.Lon) {
		errs = append(errs, fmt.Sprintf(
			"coordinates (%.5f, %.5f) outside valid range", c.Position.Lat, c.Position.Lon))
	}

	switch {
	case c.GPSAccuracy > DefaultHardGPSAccuracy:
		errs = append(errs, fmt.Sprintf(
			"gps accuracy %.1fm too poor for navigation use (limit %.0fm)",
			c.GPSAccuracy, DefaultHardGPSAccuracy))
	case c.GPSAccuracy > rules.MaxGPSAccuracy:
		warnings = append(warnings, fmt.Sprintf(
			"gps accuracy %.1fm exceeds %.0fm target", c.GPSAccuracy, rules.MaxGPSAccuracy))
	}

	if c.Speed() > rules.MaxSpeedForAccuracy {
		warnings = append(warnings, fmt.Sprintf(
			"reading taken while moving at %.1f m/s (limit %.1f m/s)",
			c.Speed(), rules.MaxSpeedForAccuracy))
	}

	if age := now.Sub(c.Time()); age > rules.StaleWindow {
		warnings = append(warnings, fmt.Sprintf(
			"reading is %s old (stale after %s)", age.Round(time.Second), rules.StaleWindow))
	}

	score, confidence := Score(c, warnings, errs)

	return reading.ValidationResult{
		IsValid:    len(errs) == 0,
		Confidence: confidence,
		Warnings:   warnings,
		Errors:     errs,
		Score:      score,
	}
}
