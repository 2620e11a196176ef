// Package queue implements the durable local queue that holds processed
// readings while the device is offline. Entries are FIFO, keyed by a locally
// generated globally unique id, and removed only after the remote store
// acknowledges them.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

// ErrClosed indicates operations on a closed queue.
var ErrClosed = errors.New("queue: closed")

const schema = `
CREATE TABLE IF NOT EXISTS queue_entries (
    id           TEXT PRIMARY KEY,
    reading_id   TEXT NOT NULL,
    payload      TEXT NOT NULL,
    created_at   INTEGER NOT NULL,
    retry_count  INTEGER NOT NULL DEFAULT 0,
    last_error   TEXT,
    next_attempt INTEGER NOT NULL DEFAULT 0,
    poisoned     INTEGER NOT NULL DEFAULT 0
);`

// Entry wraps a processed reading awaiting transmission. The id is stable
// across retries so the remote store can deduplicate replays.
type Entry struct {
	ID         string
	Reading    reading.ProcessedDepthReading
	CreatedAt  time.Time
	RetryCount int
	LastError  string
}

// Queue is the sqlite-backed offline queue. A single connection keeps all
// mutation serialized; only the sync engine writes to it.
type Queue struct {
	db     *sql.DB
	logger zerolog.Logger
	closed bool
}

// Open opens (or creates) the queue database at path. Pass ":memory:" for an
// ephemeral queue in tests.
func Open(path string, logger zerolog.Logger) (*Queue, error) {
	if path == "" {
		return nil, errors.New("queue: path required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("queue: ensure dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("queue: open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("pragma busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: set busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: create schema: %w", err)
	}

	return &Queue{
		db:     db,
		logger: logger.With().Str("component", "queue").Logger(),
	}, nil
}

// Close releases the underlying database.
func (q *Queue) Close() error {
	if q == nil || q.closed {
		return nil
	}
	q.closed = true
	return q.db.Close()
}

// Enqueue appends a processed reading to the tail of the queue.
func (q *Queue) Enqueue(ctx context.Context, r reading.ProcessedDepthReading) (Entry, error) {
	if q.closed {
		return Entry{}, ErrClosed
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return Entry{}, fmt.Errorf("queue: encode reading: %w", err)
	}

	entry := Entry{
		ID:        uuid.NewString(),
		Reading:   r,
		CreatedAt: time.Now().UTC(),
	}

	_, err = q.db.ExecContext(ctx,
		`INSERT INTO queue_entries (id, reading_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		entry.ID, r.ID, string(payload), entry.CreatedAt.UnixMilli())
	if err != nil {
		return Entry{}, fmt.Errorf("queue: insert entry: %w", err)
	}

	q.logger.Debug().Str("entry", entry.ID).Str("reading", r.ID).Msg("reading queued")
	return entry, nil
}

// Due returns unpoisoned entries whose next attempt time has passed, oldest
// first. Entries that fail to decode are poisoned in place so one corrupt row
// cannot block the rest of the queue.
func (q *Queue) Due(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	if q.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT id, payload, created_at, retry_count, COALESCE(last_error, '')
         FROM queue_entries
         WHERE poisoned = 0 AND next_attempt <= ?
         ORDER BY rowid
         LIMIT ?`,
		now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("queue: list due entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	var corrupt []string
	for rows.Next() {
		var (
			id        string
			payload   string
			createdMs int64
			retries   int
			lastErr   string
		)
		if err := rows.Scan(&id, &payload, &createdMs, &retries, &lastErr); err != nil {
			return nil, err
		}

		var r reading.ProcessedDepthReading
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			q.logger.Error().Err(err).Str("entry", id).Msg("corrupt queue entry, isolating")
			corrupt = append(corrupt, id)
			continue
		}

		entries = append(entries, Entry{
			ID:         id,
			Reading:    r,
			CreatedAt:  time.UnixMilli(createdMs).UTC(),
			RetryCount: retries,
			LastError:  lastErr,
		})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for _, id := range corrupt {
		if err := q.MarkPoisoned(ctx, id, "payload decode failed"); err != nil {
			q.logger.Error().Err(err).Str("entry", id).Msg("failed to poison corrupt entry")
		}
	}

	return entries, nil
}

// Ack removes an entry after the remote store confirmed it.
func (q *Queue) Ack(ctx context.Context, id string) error {
	if q.closed {
		return ErrClosed
	}
	if _, err := q.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("queue: ack entry: %w", err)
	}
	return nil
}

// MarkFailed records a submission failure, keeping the entry queued with an
// incremented retry count and its next attempt time.
func (q *Queue) MarkFailed(ctx context.Context, id, errMsg string, nextAttempt time.Time) error {
	if q.closed {
		return ErrClosed
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE queue_entries
         SET retry_count = retry_count + 1, last_error = ?, next_attempt = ?
         WHERE id = ?`,
		errMsg, nextAttempt.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("queue: mark failed: %w", err)
	}
	return nil
}

// MarkPoisoned isolates an entry that can never be transmitted. Poisoned
// entries stay in the table for auditing but are skipped by Due.
func (q *Queue) MarkPoisoned(ctx context.Context, id, reason string) error {
	if q.closed {
		return ErrClosed
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE queue_entries SET poisoned = 1, last_error = ? WHERE id = ?`,
		reason, id)
	if err != nil {
		return fmt.Errorf("queue: mark poisoned: %w", err)
	}
	return nil
}

// Len counts pending (unpoisoned) entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	if q.closed {
		return 0, ErrClosed
	}
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_entries WHERE poisoned = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("queue: count entries: %w", err)
	}
	return count, nil
}
