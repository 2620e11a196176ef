// Package syncer reconciles the offline queue with the canonical spatial
// store. Sync passes are single-flight: triggers arriving while a pass runs
// coalesce into one follow-up pass instead of running concurrently.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/queue"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

// Submitter pushes one reading to the canonical store. The store must treat
// resubmission of the same reading id as a no-op.
type Submitter interface {
	UpsertReading(ctx context.Context, r reading.ProcessedDepthReading) error
}

// Options tune retry pacing and batching.
type Options struct {
	BackoffBase time.Duration
	BackoffMax  time.Duration
	BatchLimit  int
	// Acked is invoked after the store confirms an entry, before it is
	// removed from the queue, so the local cache can surface the reading
	// immediately.
	Acked func(r reading.ProcessedDepthReading)
	Now   func() time.Time
}

// Result summarizes one sync pass.
type Result struct {
	Submitted int
	Failed    int
	Remaining int
	// Coalesced is true when a pass was already in flight and this request
	// was folded into a follow-up run.
	Coalesced bool
}

// Syncer drains the offline queue into the spatial store.
type Syncer struct {
	queue     *queue.Queue
	submitter Submitter
	logger    zerolog.Logger

	backoffBase time.Duration
	backoffMax  time.Duration
	batchLimit  int
	acked       func(reading.ProcessedDepthReading)
	now         func() time.Time

	mu      sync.Mutex
	running bool
	rerun   bool
	online  bool

	trigger chan struct{}
}

// New constructs a syncer over the given queue and store.
func New(q *queue.Queue, submitter Submitter, opts Options, logger zerolog.Logger) *Syncer {
	base := opts.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	max := opts.BackoffMax
	if max <= 0 {
		max = 60 * time.Second
	}
	limit := opts.BatchLimit
	if limit <= 0 {
		limit = 100
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Syncer{
		queue:       q,
		submitter:   submitter,
		logger:      logger.With().Str("component", "syncer").Logger(),
		backoffBase: base,
		backoffMax:  max,
		batchLimit:  limit,
		acked:       opts.Acked,
		now:         now,
		trigger:     make(chan struct{}, 1),
	}
}

// SetAcked installs the acknowledgement callback after construction, for
// callers that wire the syncer before its consumer exists.
func (s *Syncer) SetAcked(fn func(r reading.ProcessedDepthReading)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = fn
}

// Online reports the last known connectivity state.
func (s *Syncer) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// SetOnline records a connectivity signal. A transition to online requests a
// sync pass.
func (s *Syncer) SetOnline(online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	s.mu.Unlock()

	if online && !wasOnline {
		s.OnConnectivityRestored()
	}
}

// OnConnectivityRestored requests a sync pass from the background loop.
// Requests are coalesced; at most one is pending at a time.
func (s *Syncer) OnConnectivityRestored() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run processes sync triggers and periodic retry ticks until ctx is
// cancelled. retryInterval bounds how long a backed-off entry waits beyond
// its scheduled attempt time.
func (s *Syncer) Run(ctx context.Context, retryInterval time.Duration) {
	if retryInterval <= 0 {
		retryInterval = 15 * time.Second
	}
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
		case <-ticker.C:
		}
		if !s.Online() {
			continue
		}
		if _, err := s.SyncPending(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("sync pass failed")
		}
	}
}

// SyncPending transmits due entries in FIFO order. If a pass is already in
// flight the call returns immediately with Coalesced set and the running pass
// repeats once it finishes. Entries are removed only after the store
// acknowledges them, so cancellation at any point leaves unacknowledged
// entries queued.
func (s *Syncer) SyncPending(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.running {
		s.rerun = true
		s.mu.Unlock()
		return Result{Coalesced: true}, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var total Result
	for {
		res, err := s.syncOnce(ctx)
		total.Submitted += res.Submitted
		total.Failed += res.Failed
		total.Remaining = res.Remaining
		if err != nil {
			return total, err
		}

		s.mu.Lock()
		again := s.rerun
		s.rerun = false
		s.mu.Unlock()
		if !again {
			return total, nil
		}
	}
}

func (s *Syncer) syncOnce(ctx context.Context) (Result, error) {
	var res Result

	entries, err := s.queue.Due(ctx, s.now(), s.batchLimit)
	if err != nil {
		return res, err
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			// Interrupted mid-batch; unacknowledged entries stay queued.
			break
		}

		if err := s.submitter.UpsertReading(ctx, entry.Reading); err != nil {
			res.Failed++
			next := s.now().Add(s.backoffFor(entry.RetryCount))
			if markErr := s.queue.MarkFailed(ctx, entry.ID, err.Error(), next); markErr != nil {
				s.logger.Error().Err(markErr).Str("entry", entry.ID).Msg("failed to record submission failure")
			}
			s.logger.Warn().Err(err).
				Str("entry", entry.ID).
				Int("retries", entry.RetryCount+1).
				Time("next_attempt", next).
				Msg("submission failed, entry kept queued")
			continue
		}

		s.mu.Lock()
		acked := s.acked
		s.mu.Unlock()
		if acked != nil {
			acked(entry.Reading)
		}
		if err := s.queue.Ack(ctx, entry.ID); err != nil {
			s.logger.Error().Err(err).Str("entry", entry.ID).Msg("failed to remove acknowledged entry")
			continue
		}
		res.Submitted++
	}

	remaining, err := s.queue.Len(ctx)
	if err != nil {
		return res, err
	}
	res.Remaining = remaining

	if res.Submitted > 0 || res.Failed > 0 {
		s.logger.Info().
			Int("submitted", res.Submitted).
			Int("failed", res.Failed).
			Int("remaining", res.Remaining).
			Msg("sync pass complete")
	}
	return res, nil
}

// backoffFor doubles the base delay per prior retry, capped at the ceiling.
func (s *Syncer) backoffFor(retries int) time.Duration {
	d := s.backoffBase
	for i := 0; i < retries; i++ {
		d *= 2
		if d >= s.backoffMax {
			return s.backoffMax
		}
	}
	if d > s.backoffMax {
		return s.backoffMax
	}
	return d
}
