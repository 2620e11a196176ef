package pipeline

import "time"

// Default validation rule values. Depth and coordinate limits are hard
// errors; the rest produce confidence-degrading warnings.
const (
	DefaultMaxDepthMeters      = 200.0
	DefaultMinDepthMeters      = 0.0
	DefaultMaxGPSAccuracy      = 10.0
	DefaultHardGPSAccuracy     = 20.0
	DefaultMaxSpeedForAccuracy = 2.0
	DefaultDuplicateWindow     = 30 * time.Second
	DefaultStaleWindow         = 5 * time.Minute
	DefaultDuplicateRadius     = 10.0
	DefaultNeighborhoodRadius  = 100.0
	DefaultMinNeighborhoodSize = 3
)

// Rules parameterise validation and detection for one pipeline instance.
type Rules struct {
	MaxDepthMeters      float64       `mapstructure:"max_depth_meters"`
	MinDepthMeters      float64       `mapstructure:"min_depth_meters"`
	MaxGPSAccuracy      float64       `mapstructure:"max_gps_accuracy_meters"`
	MaxSpeedForAccuracy float64       `mapstructure:"max_speed_mps"`
	DuplicateWindow     time.Duration `mapstructure:"duplicate_window"`
	StaleWindow         time.Duration `mapstructure:"stale_window"`
}

// DefaultRules returns the standard rule set.
func DefaultRules() Rules {
	return Rules{
		MaxDepthMeters:      DefaultMaxDepthMeters,
		MinDepthMeters:      DefaultMinDepthMeters,
		MaxGPSAccuracy:      DefaultMaxGPSAccuracy,
		MaxSpeedForAccuracy: DefaultMaxSpeedForAccuracy,
		DuplicateWindow:     DefaultDuplicateWindow,
		StaleWindow:         DefaultStaleWindow,
	}
}

// withDefaults fills unset fields so partially populated rule sets behave.
func (r Rules) withDefaults() Rules {
	if r.MaxDepthMeters <= 0 {
		r.MaxDepthMeters = DefaultMaxDepthMeters
	}
	if r.MinDepthMeters < 0 {
		r.MinDepthMeters = DefaultMinDepthMeters
	}
	if r.MaxGPSAccuracy <= 0 {
		r.MaxGPSAccuracy = DefaultMaxGPSAccuracy
	}
	if r.MaxSpeedForAccuracy <= 0 {
		r.MaxSpeedForAccuracy = DefaultMaxSpeedForAccuracy
	}
	if r.DuplicateWindow <= 0 {
		r.DuplicateWindow = DefaultDuplicateWindow
	}
	if r.StaleWindow <= 0 {
		r.StaleWindow = DefaultStaleWindow
	}
	return r
}
