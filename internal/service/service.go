// Package service exposes the submission API: it drives candidates through
// the quality pipeline, raises safety alerts, and routes accepted readings
// either straight to the canonical store or into the offline queue.
package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/alerting"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/history"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/pipeline"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/queue"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/safety"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/storage"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/syncer"
)

// Outcome is what happened to a submitted candidate.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeQueued   Outcome = "queued"
	OutcomeRejected Outcome = "rejected"
)

// SubmitResult is returned to the caller for every submission.
type SubmitResult struct {
	Outcome    Outcome                        `json:"outcome"`
	Validation reading.ValidationResult       `json:"validation"`
	Reading    *reading.ProcessedDepthReading `json:"reading,omitempty"`
	QueueEntry string                         `json:"queue_entry,omitempty"`
}

// localCacheSize bounds how many acknowledged readings are kept for
// immediate display.
const localCacheSize = 200

// Service wires the pipeline to its collaborators for one submitter session.
type Service struct {
	pipeline *pipeline.Pipeline
	index    *history.Index
	queue    *queue.Queue
	syncer   *syncer.Syncer
	store    storage.ReadingStore
	audit    storage.AlertAuditStore
	alerts   *safety.Manager
	notifier alerting.Notifier
	logger   zerolog.Logger

	cacheMu sync.Mutex
	cache   []reading.ProcessedDepthReading
}

// Options collects the service's collaborators. Store, audit, and notifier
// may be nil; the service degrades accordingly.
type Options struct {
	Pipeline *pipeline.Pipeline
	Index    *history.Index
	Queue    *queue.Queue
	Syncer   *syncer.Syncer
	Store    storage.ReadingStore
	Audit    storage.AlertAuditStore
	Alerts   *safety.Manager
	Notifier alerting.Notifier
}

// New constructs the submission service.
func New(opts Options, logger zerolog.Logger) *Service {
	return &Service{
		pipeline: opts.Pipeline,
		index:    opts.Index,
		queue:    opts.Queue,
		syncer:   opts.Syncer,
		store:    opts.Store,
		audit:    opts.Audit,
		alerts:   opts.Alerts,
		notifier: opts.Notifier,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// SubmitReading runs one candidate through the pipeline. Structurally invalid
// readings are rejected synchronously and never queued. Valid readings are
// delivered to the canonical store when online, otherwise queued for the sync
// engine.
func (s *Service) SubmitReading(ctx context.Context, c reading.CandidateReading) (SubmitResult, error) {
	processed, validation := s.pipeline.Process(ctx, s.index, c)
	if processed == nil {
		s.logger.Info().
			Strs("errors", validation.Errors).
			Str("submitter", c.SubmitterID).
			Msg("reading rejected")
		return SubmitResult{Outcome: OutcomeRejected, Validation: validation}, nil
	}

	s.raiseAlerts(ctx, *processed)

	if s.syncer != nil && s.syncer.Online() && s.store != nil {
		err := s.store.UpsertReading(ctx, *processed)
		if err == nil {
			s.cacheLocal(*processed)
			return SubmitResult{Outcome: OutcomeAccepted, Validation: validation, Reading: processed}, nil
		}
		// Fall back to the queue so the reading is not lost.
		s.logger.Warn().Err(err).Str("reading", processed.ID).Msg("direct submit failed, queueing")
	}

	entry, err := s.queue.Enqueue(ctx, *processed)
	if err != nil {
		return SubmitResult{}, err
	}
	if s.syncer != nil {
		s.syncer.OnConnectivityRestored()
	}

	return SubmitResult{
		Outcome:    OutcomeQueued,
		Validation: validation,
		Reading:    processed,
		QueueEntry: entry.ID,
	}, nil
}

// OnConnectivityChanged feeds the connectivity signal through to the sync
// engine.
func (s *Service) OnConnectivityChanged(online bool) {
	if s.syncer != nil {
		s.syncer.SetOnline(online)
	}
}

// CacheAcked records a reading the store acknowledged so it is visible
// locally without waiting for a subsequent query. Wired as the syncer's
// Acked callback.
func (s *Service) CacheAcked(r reading.ProcessedDepthReading) {
	s.cacheLocal(r)
}

// RecentLocal returns the locally cached acknowledged readings, most recent
// first.
func (s *Service) RecentLocal() []reading.ProcessedDepthReading {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	out := make([]reading.ProcessedDepthReading, len(s.cache))
	for i, r := range s.cache {
		out[len(s.cache)-1-i] = r
	}
	return out
}

func (s *Service) cacheLocal(r reading.ProcessedDepthReading) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache = append(s.cache, r)
	if len(s.cache) > localCacheSize {
		s.cache = s.cache[len(s.cache)-localCacheSize:]
	}
}

func (s *Service) raiseAlerts(ctx context.Context, r reading.ProcessedDepthReading) {
	if s.alerts == nil {
		return
	}

	created := s.alerts.Evaluate(r, s.pipeline.Profile())
	for _, alert := range created {
		if s.audit != nil {
			rec := storage.AlertRecord{
				AlertID:  alert.ID,
				Type:     string(alert.Type),
				Severity: string(alert.Severity),
				Position: alert.Position,
				Message:  alert.Message,
			}
			if _, err := s.audit.InsertAlertRecord(ctx, rec); err != nil {
				s.logger.Error().Err(err).Str("alert", alert.ID).Msg("failed to persist alert record")
			}
		}
		if s.notifier != nil && alert.Severity == safety.SeverityCritical {
			if err := s.notifier.Notify(ctx, alert); err != nil {
				s.logger.Error().Err(err).Str("alert", alert.ID).Msg("failed to dispatch alert")
			}
		}
	}
}
