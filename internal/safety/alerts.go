package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

// AlertType distinguishes what condition raised a safety alert.
type AlertType string

const (
	AlertShallowWater  AlertType = "shallow_water"
	AlertDepthUnknown  AlertType = "depth_unknown"
	AlertDataQuality   AlertType = "data_quality"
	AlertEnvironmental AlertType = "environmental"
)

// Severity ranks an alert for display and routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one live or archived safety alert.
type Alert struct {
	ID             string     `json:"id"`
	Type           AlertType  `json:"type"`
	Severity       Severity   `json:"severity"`
	Position       geo.Point  `json:"position"`
	Message        string     `json:"message"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// EventKind labels alert lifecycle events on the sink stream.
type EventKind string

const (
	EventCreated      EventKind = "created"
	EventAcknowledged EventKind = "acknowledged"
	EventRemoved      EventKind = "removed"
)

// Event is one entry on the alert sink stream consumed by the UI layer.
type Event struct {
	Kind  EventKind `json:"kind"`
	Alert Alert     `json:"alert"`
}

// ManagerOptions tune the alert lifecycle.
type ManagerOptions struct {
	AutoAcknowledge        bool
	AutoAcknowledgeTimeout time.Duration
	SweepInterval          time.Duration
	SinkBuffer             int
	Now                    func() time.Time
}

// Manager owns the alert state machine: none, active (unacknowledged),
// acknowledged, removed. At most one unacknowledged alert of a given type is
// live at a time; repeat triggers are suppressed rather than stacked.
type Manager struct {
	mu     sync.Mutex
	active map[AlertType]*Alert
	sink   chan Event
	logger zerolog.Logger

	autoAck    bool
	ackTimeout time.Duration
	sweepEvery time.Duration
	now        func() time.Time
}

// NewManager constructs an alert manager with the given lifecycle options.
func NewManager(opts ManagerOptions, logger zerolog.Logger) *Manager {
	timeout := opts.AutoAcknowledgeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = 5 * time.Second
	}
	buffer := opts.SinkBuffer
	if buffer <= 0 {
		buffer = 64
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		active:     make(map[AlertType]*Alert),
		sink:       make(chan Event, buffer),
		logger:     logger.With().Str("component", "alerts").Logger(),
		autoAck:    opts.AutoAcknowledge,
		ackTimeout: timeout,
		sweepEvery: sweep,
		now:        now,
	}
}

// Sink returns the alert event stream. Events are dropped when the consumer
// falls behind rather than blocking the pipeline.
func (m *Manager) Sink() <-chan Event {
	return m.sink
}

// Evaluate inspects a processed reading and raises any warranted alerts.
// Returns the alerts created by this evaluation (empty when suppressed or
// when the reading is safe).
func (m *Manager) Evaluate(r reading.ProcessedDepthReading, profile VesselProfile) []Alert {
	var created []Alert

	corrected := r.Corrected
	clearance := profile.Clearance(corrected)

	switch r.Safety {
	case reading.SafetyUnsafe:
		msg := fmt.Sprintf("shallow water: %.1fm clearance (margin %.1fm)", clearance, profile.Margin())
		if a := m.raise(AlertShallowWater, SeverityCritical, r.Candidate.Position, msg); a != nil {
			created = append(created, *a)
		}
	case reading.SafetyUnknown:
		if a := m.raise(AlertDepthUnknown, SeverityWarning, r.Candidate.Position, "depth unknown at current position"); a != nil {
			created = append(created, *a)
		}
	}

	if r.Score.Overall < profile.QualityThreshold() {
		msg := fmt.Sprintf("depth data quality %.2f below threshold %.2f", r.Score.Overall, profile.QualityThreshold())
		if a := m.raise(AlertDataQuality, SeverityWarning, r.Candidate.Position, msg); a != nil {
			created = append(created, *a)
		}
	}

	return created
}

// RaiseEnvironmental raises an environmental alert (degraded tide data and
// similar conditions) subject to the same per-type suppression.
func (m *Manager) RaiseEnvironmental(pos geo.Point, message string) *Alert {
	return m.raise(AlertEnvironmental, SeverityInfo, pos, message)
}

// raise creates a new active alert of the given type unless one is already
// live and unacknowledged, in which case the trigger is suppressed.
func (m *Manager) raise(t AlertType, sev Severity, pos geo.Point, message string) *Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[t]; ok && !existing.Acknowledged {
		existing.UpdatedAt = m.now()
		return nil
	}

	now := m.now()
	alert := &Alert{
		ID:        uuid.NewString(),
		Type:      t,
		Severity:  sev,
		Position:  pos,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.active[t] = alert
	m.emit(Event{Kind: EventCreated, Alert: *alert})
	m.logger.Info().Str("type", string(t)).Str("severity", string(sev)).Msg(message)
	return alert
}

// Acknowledge marks the alert with the given id as acknowledged.
func (m *Manager) Acknowledge(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, alert := range m.active {
		if alert.ID != id || alert.Acknowledged {
			continue
		}
		now := m.now()
		alert.Acknowledged = true
		alert.AcknowledgedAt = &now
		alert.UpdatedAt = now
		m.emit(Event{Kind: EventAcknowledged, Alert: *alert})
		return true
	}
	return false
}

// Dismiss removes the alert with the given id regardless of state.
func (m *Manager) Dismiss(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for t, alert := range m.active {
		if alert.ID != id {
			continue
		}
		delete(m.active, t)
		m.emit(Event{Kind: EventRemoved, Alert: *alert})
		return true
	}
	return false
}

// Active returns a snapshot of the live alerts.
func (m *Manager) Active() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, 0, len(m.active))
	for _, alert := range m.active {
		out = append(out, *alert)
	}
	return out
}

// Sweep removes stale alerts. Acknowledged alerts are always swept once past
// the timeout; unacknowledged ones only when auto-acknowledge is enabled.
// The periodic sweep keeps the UI from accumulating silent debt.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for t, alert := range m.active {
		if now.Sub(alert.CreatedAt) < m.ackTimeout {
			continue
		}
		if !alert.Acknowledged && !m.autoAck {
			continue
		}
		delete(m.active, t)
		m.emit(Event{Kind: EventRemoved, Alert: *alert})
		removed++
	}
	return removed
}

// Run sweeps on an interval until the context is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug().Int("removed", n).Msg("swept stale alerts")
			}
		}
	}
}

func (m *Manager) emit(ev Event) {
	select {
	case m.sink <- ev:
	default:
		m.logger.Warn().Str("kind", string(ev.Kind)).Msg("alert sink full, dropping event")
	}
}
