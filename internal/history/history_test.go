package history

import (
	"testing"
	"time"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

func candidateAt(ts int64) reading.CandidateReading {
	return reading.CandidateReading{
		Position:    geo.Point{Lat: 47.6, Lon: -122.3},
		DepthMeters: 10,
		TimestampMs: ts,
		SubmitterID: "vessel-1",
	}
}

func TestRecentReverseChronological(t *testing.T) {
	ix := NewIndex("vessel-1", Options{RingSize: 5})
	for i := int64(1); i <= 3; i++ {
		ix.Append(candidateAt(i))
	}

	recent := ix.Recent()
	if len(recent) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(recent))
	}
	for i, want := range []int64{3, 2, 1} {
		if recent[i].TimestampMs != want {
			t.Fatalf("position %d: expected ts %d, got %d", i, want, recent[i].TimestampMs)
		}
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	ix := NewIndex("vessel-1", Options{RingSize: 3})
	for i := int64(1); i <= 5; i++ {
		ix.Append(candidateAt(i))
	}

	if ix.Len() != 3 {
		t.Fatalf("ring should hold 3 readings, got %d", ix.Len())
	}
	recent := ix.Recent()
	for i, want := range []int64{5, 4, 3} {
		if recent[i].TimestampMs != want {
			t.Fatalf("position %d: expected ts %d, got %d", i, want, recent[i].TimestampMs)
		}
	}
}

func TestNeighborhoodCacheExpiry(t *testing.T) {
	clock := time.Unix(1000, 0)
	ix := NewIndex("vessel-1", Options{
		CacheTTL: time.Minute,
		Now:      func() time.Time { return clock },
	})

	center := geo.Point{Lat: 47.6, Lon: -122.3}
	sample := []reading.ProcessedDepthReading{{ID: "r1"}}
	ix.StoreNeighborhood(center, sample)

	got, ok := ix.CachedNeighborhood(center)
	if !ok || len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("expected cached sample back, got %+v (hit=%v)", got, ok)
	}

	clock = clock.Add(2 * time.Minute)
	if _, ok := ix.CachedNeighborhood(center); ok {
		t.Fatal("expired cache entry should not be returned")
	}
}

func TestCacheHitOnEmptySample(t *testing.T) {
	ix := NewIndex("vessel-1", Options{})
	center := geo.Point{Lat: 47.6, Lon: -122.3}
	ix.StoreNeighborhood(center, nil)

	if _, ok := ix.CachedNeighborhood(center); !ok {
		t.Fatal("an empty stored sample is still a cache hit")
	}
}

func TestCacheMissForDistantCell(t *testing.T) {
	ix := NewIndex("vessel-1", Options{})
	ix.StoreNeighborhood(geo.Point{Lat: 47.6, Lon: -122.3}, []reading.ProcessedDepthReading{{ID: "r1"}})

	if _, ok := ix.CachedNeighborhood(geo.Point{Lat: 47.7, Lon: -122.3}); ok {
		t.Fatal("different cell should miss the cache")
	}
}

func TestTeardownClearsState(t *testing.T) {
	ix := NewIndex("vessel-1", Options{})
	ix.Append(candidateAt(1))
	ix.Teardown()
	if ix.Len() != 0 {
		t.Fatal("teardown should clear buffered readings")
	}
}
