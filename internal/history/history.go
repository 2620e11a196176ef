// Package history keeps the per-submitter recent-reading ring buffer and the
// neighborhood cache consulted by duplicate and outlier detection. The index
// is an injected, session-scoped object: construct one per submitter session
// and call Teardown on logout. It is mutated only by the pipeline task.
package history

import (
	"math"
	"time"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

const (
	// DefaultRingSize bounds how many recent readings duplicate detection scans.
	DefaultRingSize = 50

	defaultCacheTTL = 2 * time.Minute
	// Cache cells are ~0.001 degrees (~111m of latitude), sized to the 100m
	// neighborhood radius so one cell lookup covers most queries.
	cacheCellDegrees = 0.001
)

// Options tune the index; zero values take defaults.
type Options struct {
	RingSize int
	CacheTTL time.Duration
	Now      func() time.Time
}

// Index holds one submitter's recent readings plus a short-lived cache of
// neighborhood query results.
type Index struct {
	submitterID string
	ring        []reading.CandidateReading
	next        int
	full        bool

	cacheTTL time.Duration
	cache    map[cellKey]cachedNeighborhood
	now      func() time.Time
}

type cellKey struct {
	latCell int
	lonCell int
}

type cachedNeighborhood struct {
	readings []reading.ProcessedDepthReading
	storedAt time.Time
}

// NewIndex constructs an empty index for one submitter session.
func NewIndex(submitterID string, opts Options) *Index {
	size := opts.RingSize
	if size <= 0 {
		size = DefaultRingSize
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Index{
		submitterID: submitterID,
		ring:        make([]reading.CandidateReading, size),
		cacheTTL:    ttl,
		cache:       make(map[cellKey]cachedNeighborhood),
		now:         now,
	}
}

// SubmitterID returns the session owner.
func (ix *Index) SubmitterID() string {
	return ix.submitterID
}

// Append records a reading that cleared validation. Appending only after
// validation keeps a burst of near-duplicates from all passing independently.
func (ix *Index) Append(c reading.CandidateReading) {
	ix.ring[ix.next] = c
	ix.next++
	if ix.next == len(ix.ring) {
		ix.next = 0
		ix.full = true
	}
}

// Recent returns the buffered readings in reverse chronological order
// (most recent first).
func (ix *Index) Recent() []reading.CandidateReading {
	var count int
	if ix.full {
		count = len(ix.ring)
	} else {
		count = ix.next
	}

	out := make([]reading.CandidateReading, 0, count)
	for i := 1; i <= count; i++ {
		idx := ix.next - i
		if idx < 0 {
			idx += len(ix.ring)
		}
		out = append(out, ix.ring[idx])
	}
	return out
}

// Len returns the number of buffered readings.
func (ix *Index) Len() int {
	if ix.full {
		return len(ix.ring)
	}
	return ix.next
}

// CachedNeighborhood returns a previously stored neighborhood sample for the
// cell containing center. The second return is false when the entry is absent
// or expired; an empty cached sample is still a hit.
func (ix *Index) CachedNeighborhood(center geo.Point) ([]reading.ProcessedDepthReading, bool) {
	key := cellFor(center)
	entry, ok := ix.cache[key]
	if !ok {
		return nil, false
	}
	if ix.now().Sub(entry.storedAt) > ix.cacheTTL {
		delete(ix.cache, key)
		return nil, false
	}
	return entry.readings, true
}

// StoreNeighborhood caches a neighborhood query result for the cell
// containing center.
func (ix *Index) StoreNeighborhood(center geo.Point, sample []reading.ProcessedDepthReading) {
	ix.cache[cellFor(center)] = cachedNeighborhood{
		readings: sample,
		storedAt: ix.now(),
	}
}

// Teardown releases buffered state at the end of a submitter session.
func (ix *Index) Teardown() {
	ix.ring = nil
	ix.next = 0
	ix.full = false
	ix.cache = nil
}

func cellFor(p geo.Point) cellKey {
	return cellKey{
		latCell: int(math.Floor(p.Lat / cacheCellDegrees)),
		lonCell: int(math.Floor(p.Lon / cacheCellDegrees)),
	}
}
