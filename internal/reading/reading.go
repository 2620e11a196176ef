// Package reading defines the depth reading data model shared across the
// pipeline, queue, and spatial store.
package reading

import (
	"time"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
)

// Method identifies how a depth measurement was taken.
type Method string

const (
	MethodSonar    Method = "sonar"
	MethodLeadLine Method = "lead_line"
	MethodChart    Method = "chart"
	MethodVisual   Method = "visual"
)

// ConfidenceMultiplier returns the trust factor applied to a reading's
// composite score based on how it was measured.
func (m Method) ConfidenceMultiplier() float64 {
	switch m {
	case MethodSonar:
		return 1.0
	case MethodLeadLine:
		return 0.95
	case MethodChart:
		return 0.8
	case MethodVisual:
		return 0.6
	default:
		// Unknown methods are treated like visual estimates.
		return 0.6
	}
}

// Valid reports whether m is a recognized measurement method.
func (m Method) Valid() bool {
	switch m {
	case MethodSonar, MethodLeadLine, MethodChart, MethodVisual:
		return true
	}
	return false
}

// CandidateReading is a raw field measurement as submitted by a vessel.
// Immutable once created.
type CandidateReading struct {
	Position    geo.Point `json:"position"`
	DepthMeters float64   `json:"depth_meters"`
	TimestampMs int64     `json:"timestamp_ms"`
	GPSAccuracy float64   `json:"gps_accuracy_meters"`
	SpeedMPS    *float64  `json:"speed_mps,omitempty"`
	Method      Method    `json:"method"`
	SubmitterID string    `json:"submitter_id"`
}

// Time returns the reading timestamp as a time.Time.
func (c CandidateReading) Time() time.Time {
	return time.UnixMilli(c.TimestampMs).UTC()
}

// Speed returns the vessel speed, or 0 when not reported.
func (c CandidateReading) Speed() float64 {
	if c.SpeedMPS == nil {
		return 0
	}
	return *c.SpeedMPS
}

// QualityScore breaks a composite confidence down into its factors.
// All fields are in [0,1].
type QualityScore struct {
	GPSAccuracy     float64 `json:"gps_accuracy"`
	Environmental   float64 `json:"environmental_factors"`
	DataConsistency float64 `json:"data_consistency"`
	Overall         float64 `json:"overall"`
}

// ValidationResult is the outcome of running one candidate through the
// quality pipeline. Errors block the reading; warnings only degrade
// confidence.
type ValidationResult struct {
	IsValid    bool         `json:"is_valid"`
	Confidence float64      `json:"confidence"`
	Warnings   []string     `json:"warnings,omitempty"`
	Errors     []string     `json:"errors,omitempty"`
	Score      QualityScore `json:"score"`
}

// TideCorrection records a chart-datum adjustment applied to a reading.
type TideCorrection struct {
	StationID            string  `json:"station_id"`
	TideLevelMeters      float64 `json:"tide_level_meters"`
	ChartDatumMeters     float64 `json:"chart_datum_meters"`
	CorrectedDepthMeters float64 `json:"corrected_depth_meters"`
	ConfidenceMultiplier float64 `json:"confidence_multiplier"`
}

// MetadataVersion identifies the processing metadata schema. Bump when the
// struct below changes shape.
const MetadataVersion = 1

// ProcessingMetadata captures how a reading moved through the pipeline.
// A closed struct so downstream consumers never probe untyped fields.
type ProcessingMetadata struct {
	Version         int       `json:"version"`
	ProcessedAt     time.Time `json:"processed_at"`
	DuplicateOf     bool      `json:"duplicate_suspected"`
	OutlierFlagged  bool      `json:"outlier_flagged"`
	CorrectionNotes []string  `json:"correction_notes,omitempty"`
}

// SafetyStatus is the navigational classification of a corrected depth
// relative to a vessel profile.
type SafetyStatus string

const (
	SafetySafe    SafetyStatus = "safe"
	SafetyUnsafe  SafetyStatus = "unsafe"
	SafetyUnknown SafetyStatus = "unknown"
)

// Reliability labels how much a quality score should be trusted for display.
type Reliability string

const (
	ReliabilityHigh   Reliability = "high"
	ReliabilityMedium Reliability = "medium"
	ReliabilityLow    Reliability = "low"
)

// ProcessedDepthReading is a candidate that cleared validation, with
// corrections and scoring attached. This is the unit persisted to the
// canonical store and carried by the offline queue.
type ProcessedDepthReading struct {
	ID          string             `json:"id"`
	Candidate   CandidateReading   `json:"candidate"`
	Corrected   float64            `json:"corrected_depth_meters"`
	Tide        *TideCorrection    `json:"tide_correction,omitempty"`
	Score       QualityScore       `json:"score"`
	Confidence  float64            `json:"confidence"`
	Safety      SafetyStatus       `json:"safety"`
	Reliability Reliability        `json:"reliability"`
	Meta        ProcessingMetadata `json:"meta"`
}

// ReliabilityFor maps an overall quality score to a display label.
func ReliabilityFor(score float64) Reliability {
	switch {
	case score > 0.8:
		return ReliabilityHigh
	case score > 0.6:
		return ReliabilityMedium
	default:
		return ReliabilityLow
	}
}
