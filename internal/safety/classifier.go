// Package safety classifies corrected depths against a vessel profile and
// manages the safety alert lifecycle.
package safety

import "github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"

// Default thresholds for the classifier.
const (
	DefaultSafetyMargin         = 0.5
	DefaultDataQualityThreshold = 0.5
)

// VesselProfile describes the vessel the pipeline classifies readings for.
type VesselProfile struct {
	DraftMeters          float64 `mapstructure:"draft_meters"`
	SafetyMarginMeters   float64 `mapstructure:"safety_margin_meters"`
	DataQualityThreshold float64 `mapstructure:"data_quality_threshold"`
}

// Margin returns the configured safety margin or the default.
func (p VesselProfile) Margin() float64 {
	if p.SafetyMarginMeters <= 0 {
		return DefaultSafetyMargin
	}
	return p.SafetyMarginMeters
}

// QualityThreshold returns the configured quality floor or the default.
func (p VesselProfile) QualityThreshold() float64 {
	if p.DataQualityThreshold <= 0 {
		return DefaultDataQualityThreshold
	}
	return p.DataQualityThreshold
}

// Clearance is the water under the keel: corrected depth minus draft.
func (p VesselProfile) Clearance(correctedDepth float64) float64 {
	return correctedDepth - p.DraftMeters
}

// StatusFor derives the display safety status for a corrected depth.
// A nil depth means no usable measurement and classifies as unknown; when
// inputs are incomplete the conservative interpretation always wins.
func StatusFor(correctedDepth *float64, profile VesselProfile) reading.SafetyStatus {
	if correctedDepth == nil {
		return reading.SafetyUnknown
	}
	if profile.Clearance(*correctedDepth) >= profile.Margin() {
		return reading.SafetySafe
	}
	return reading.SafetyUnsafe
}
