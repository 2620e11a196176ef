package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/queue"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

// fakeStore records upserts keyed by reading id, emulating the canonical
// store's idempotence contract.
type fakeStore struct {
	mu       sync.Mutex
	readings map[string]reading.ProcessedDepthReading
	upserts  int
	failFor  map[string]error
	block    chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		readings: make(map[string]reading.ProcessedDepthReading),
		failFor:  make(map[string]error),
	}
}

func (f *fakeStore) UpsertReading(ctx context.Context, r reading.ProcessedDepthReading) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if err, ok := f.failFor[r.ID]; ok {
		return err
	}
	f.readings[r.ID] = r
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readings)
}

func openTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	q, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func processedReading(id string) reading.ProcessedDepthReading {
	return reading.ProcessedDepthReading{
		ID: id,
		Candidate: reading.CandidateReading{
			Position:    geo.Point{Lat: 47.6, Lon: -122.3},
			DepthMeters: 12,
			TimestampMs: time.Now().UnixMilli(),
			SubmitterID: "vessel-1",
		},
		Corrected: 12,
	}
}

func TestSyncDrainsQueueInOrder(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		if _, err := q.Enqueue(ctx, processedReading(id)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	s := New(q, store, Options{}, zerolog.Nop())
	res, err := s.SyncPending(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Submitted != 3 || res.Remaining != 0 {
		t.Fatalf("expected 3 submitted / 0 remaining, got %+v", res)
	}
	if store.count() != 3 {
		t.Fatalf("store should hold 3 readings, got %d", store.count())
	}
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	// Round-trip: enqueue, sync, then replay the same reading as a crash
	// recovery would. The store keys on reading id, so exactly one row exists.
	q := openTestQueue(t)
	store := newFakeStore()
	ctx := context.Background()

	r := processedReading("r1")
	if _, err := q.Enqueue(ctx, r); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	s := New(q, store, Options{}, zerolog.Nop())
	if _, err := s.SyncPending(ctx); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// Simulate an ack lost in transit: the entry is re-enqueued and re-sent.
	if _, err := q.Enqueue(ctx, r); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if _, err := s.SyncPending(ctx); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	if store.count() != 1 {
		t.Fatalf("duplicate delivery must not create a second row, got %d", store.count())
	}
	if store.upserts != 2 {
		t.Fatalf("expected 2 upsert calls, got %d", store.upserts)
	}
}

func TestFailedEntryStaysQueuedWithBackoff(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()
	store.failFor["r1"] = errors.New("remote unavailable")
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, processedReading("r1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	clock := time.Now()
	s := New(q, store, Options{
		BackoffBase: time.Second,
		Now:         func() time.Time { return clock },
	}, zerolog.Nop())

	res, err := s.SyncPending(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Failed != 1 || res.Remaining != 1 {
		t.Fatalf("failed entry must remain queued, got %+v", res)
	}

	// Immediately retrying finds nothing due: the entry is backed off.
	res, err = s.SyncPending(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Submitted != 0 || res.Failed != 0 {
		t.Fatalf("backed-off entry must not be retried yet, got %+v", res)
	}

	// After the backoff elapses and the remote recovers, the entry drains.
	delete(store.failFor, "r1")
	clock = clock.Add(5 * time.Second)
	res, err = s.SyncPending(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Submitted != 1 || res.Remaining != 0 {
		t.Fatalf("recovered entry should drain, got %+v", res)
	}
}

func TestBackoffSchedule(t *testing.T) {
	s := New(openTestQueue(t), newFakeStore(), Options{
		BackoffBase: time.Second,
		BackoffMax:  60 * time.Second,
	}, zerolog.Nop())

	cases := map[int]time.Duration{
		0:  time.Second,
		1:  2 * time.Second,
		2:  4 * time.Second,
		5:  32 * time.Second,
		6:  60 * time.Second,
		20: 60 * time.Second,
	}
	for retries, want := range cases {
		if got := s.backoffFor(retries); got != want {
			t.Fatalf("retries=%d: expected %s, got %s", retries, want, got)
		}
	}
}

func TestSingleFlightCoalescing(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()
	store.block = make(chan struct{})
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, processedReading("r1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	s := New(q, store, Options{}, zerolog.Nop())

	done := make(chan Result, 1)
	go func() {
		res, _ := s.SyncPending(ctx)
		done <- res
	}()

	// Wait for the first pass to reach the blocking upsert.
	deadline := time.After(2 * time.Second)
	for {
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if running {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first sync pass never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	res, err := s.SyncPending(ctx)
	if err != nil {
		t.Fatalf("concurrent sync: %v", err)
	}
	if !res.Coalesced {
		t.Fatal("second request during a running pass must coalesce")
	}

	close(store.block)
	first := <-done
	if first.Submitted != 1 {
		t.Fatalf("first pass should submit the entry, got %+v", first)
	}
	// The coalesced rerun found nothing left to do.
	if store.count() != 1 {
		t.Fatalf("expected exactly one stored reading, got %d", store.count())
	}
}

func TestCancellationLeavesEntriesQueued(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()

	for _, id := range []string{"r1", "r2", "r3"} {
		if _, err := q.Enqueue(context.Background(), processedReading(id)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(q, store, Options{}, zerolog.Nop())
	_, _ = s.SyncPending(ctx)

	// Regardless of where cancellation interrupted the pass, nothing was
	// acknowledged, so nothing may be lost.
	remaining, err := q.Len(context.Background())
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("cancelled sync must leave unacknowledged entries queued, got %d", remaining)
	}
}

func TestConnectivityTransitionTriggersSync(t *testing.T) {
	q := openTestQueue(t)
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := q.Enqueue(ctx, processedReading("r1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	s := New(q, store, Options{}, zerolog.Nop())
	go s.Run(ctx, time.Hour)

	s.SetOnline(true)

	deadline := time.After(2 * time.Second)
	for store.count() != 1 {
		select {
		case <-deadline:
			t.Fatal("connectivity restoration should have triggered a sync")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}
