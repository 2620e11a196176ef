package geo

import (
	"math"
	"testing"
)

func TestDistanceMetersZero(t *testing.T) {
	p := Point{Lat: 47.6, Lon: -122.3}
	if d := DistanceMeters(p, p); d != 0 {
		t.Fatalf("distance to self should be 0, got %f", d)
	}
}

func TestDistanceMetersKnownPair(t *testing.T) {
	// Roughly 111.19 km per degree of latitude at the equator.
	a := Point{Lat: 0, Lon: 0}
	b := Point{Lat: 1, Lon: 0}
	d := DistanceMeters(a, b)
	if math.Abs(d-111195) > 100 {
		t.Fatalf("one degree of latitude should be ~111195m, got %f", d)
	}
}

func TestDistanceMetersSmallOffset(t *testing.T) {
	// ~0.0001 degrees of latitude is about 11 meters.
	a := Point{Lat: 47.6, Lon: -122.3}
	b := Point{Lat: 47.6001, Lon: -122.3}
	d := DistanceMeters(a, b)
	if d < 10 || d > 13 {
		t.Fatalf("expected ~11m, got %f", d)
	}
}

func TestWithinRadius(t *testing.T) {
	center := Point{Lat: 47.6, Lon: -122.3}
	near := Point{Lat: 47.6001, Lon: -122.3}
	far := Point{Lat: 47.7, Lon: -122.3}

	if !WithinRadius(center, near, 100) {
		t.Fatal("near point should be inside 100m radius")
	}
	if WithinRadius(center, far, 100) {
		t.Fatal("far point should be outside 100m radius")
	}
}

func TestBoundsAroundContainsCircle(t *testing.T) {
	center := Point{Lat: 47.6, Lon: -122.3}
	b := BoundsAround(center, 100)

	if !b.Contains(center) {
		t.Fatal("bounds must contain the center")
	}

	// Points just inside the circle must be inside the box.
	for _, p := range []Point{
		{Lat: 47.6008, Lon: -122.3},
		{Lat: 47.6, Lon: -122.2988},
	} {
		if WithinRadius(center, p, 100) && !b.Contains(p) {
			t.Fatalf("point %+v inside circle but outside bounds %+v", p, b)
		}
	}
}

func TestBoundsAroundClampsAtPole(t *testing.T) {
	b := BoundsAround(Point{Lat: 89.9999, Lon: 0}, 50000)
	if b.MaxLat > 90 {
		t.Fatalf("latitude must clamp at 90, got %f", b.MaxLat)
	}
}

func TestValidCoordinates(t *testing.T) {
	if !ValidCoordinates(47.6, -122.3) {
		t.Fatal("valid coordinates rejected")
	}
	if ValidCoordinates(90.1, 0) || ValidCoordinates(0, 180.5) || ValidCoordinates(-91, -181) {
		t.Fatal("out-of-range coordinates accepted")
	}
}
