package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "queue.db"), zerolog.Nop())
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
			Method:      reading.MethodSonar,
			SubmitterID: "vessel-1",
		},
		Corrected:  12,
		Confidence: 0.9,
		Safety:     reading.SafetySafe,
	}
}

func TestEnqueueAndDueFIFO(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		if _, err := q.Enqueue(ctx, processedReading(id)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	entries, err := q.Due(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"r1", "r2", "r3"} {
		if entries[i].Reading.ID != want {
			t.Fatalf("position %d: expected reading %s, got %s", i, want, entries[i].Reading.ID)
		}
	}
}

func TestEntryIDStableAcrossRetries(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	entry, err := q.Enqueue(ctx, processedReading("r1"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := q.MarkFailed(ctx, entry.ID, "network down", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	entries, err := q.Due(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entry must remain queued after failure, got %d", len(entries))
	}
	got := entries[0]
	if got.ID != entry.ID {
		t.Fatalf("entry id must be stable across retries: %s != %s", got.ID, entry.ID)
	}
	if got.RetryCount != 1 || got.LastError != "network down" {
		t.Fatalf("retry metadata not recorded: %+v", got)
	}
}

func TestBackoffDefersEntry(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	entry, _ := q.Enqueue(ctx, processedReading("r1"))
	if err := q.MarkFailed(ctx, entry.ID, "timeout", now.Add(time.Minute)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	due, err := q.Due(ctx, now, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatal("deferred entry must not be due before its next attempt time")
	}

	due, err = q.Due(ctx, now.Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 {
		t.Fatal("entry must become due after the backoff elapses")
	}
}

func TestAckRemovesEntry(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	entry, _ := q.Enqueue(ctx, processedReading("r1"))
	if err := q.Ack(ctx, entry.ID); err != nil {
		t.Fatalf("ack: %v", err)
	}

	count, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if count != 0 {
		t.Fatalf("acked entry should be removed, %d remain", count)
	}
}

func TestPoisonedEntryIsolated(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	bad, _ := q.Enqueue(ctx, processedReading("bad"))
	good, _ := q.Enqueue(ctx, processedReading("good"))

	// Corrupt the first payload directly, as a crash mid-write might.
	if _, err := q.db.ExecContext(ctx,
		`UPDATE queue_entries SET payload = '{broken' WHERE id = ?`, bad.ID); err != nil {
		t.Fatalf("corrupt payload: %v", err)
	}

	entries, err := q.Due(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != good.ID {
		t.Fatalf("corrupt entry must be isolated, got %+v", entries)
	}

	// Poisoned entry stays out of subsequent scans too.
	entries, _ = q.Due(ctx, time.Now(), 10)
	if len(entries) != 1 {
		t.Fatalf("poisoned entry must stay isolated, got %d entries", len(entries))
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.db")
	ctx := context.Background()

	q, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := q.Enqueue(ctx, processedReading("r1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	q.Close()

	reopened, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	count, err := reopened.Len(ctx)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if count != 1 {
		t.Fatalf("entry must survive process restart, got %d", count)
	}
}
