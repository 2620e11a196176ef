// Package geo provides the great-circle math used by duplicate detection,
// neighborhood queries, and tide station selection.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for haversine distances.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds is an axis-aligned bounding box in decimal degrees.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// DistanceMeters returns the haversine great-circle distance between two points.
func DistanceMeters(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// WithinRadius reports whether b lies within radiusMeters of center.
func WithinRadius(center, b Point, radiusMeters float64) bool {
	return DistanceMeters(center, b) <= radiusMeters
}

// Contains reports whether p lies inside the bounds (inclusive).
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// BoundsAround returns a bounding box enclosing the circle of radiusMeters
// around center. Longitude span widens toward the poles; near the poles the
// box degenerates to the full longitude range.
func BoundsAround(center Point, radiusMeters float64) Bounds {
	dLat := radiusMeters / EarthRadiusMeters * 180 / math.Pi

	cosLat := math.Cos(center.Lat * math.Pi / 180)
	var dLon float64
	if cosLat < 1e-9 {
		dLon = 180
	} else {
		dLon = dLat / cosLat
	}

	b := Bounds{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLon: center.Lon - dLon,
		MaxLon: center.Lon + dLon,
	}
	if b.MinLat < -90 {
		b.MinLat = -90
	}
	if b.MaxLat > 90 {
		b.MaxLat = 90
	}
	if b.MinLon < -180 {
		b.MinLon = -180
	}
	if b.MaxLon > 180 {
		b.MaxLon = 180
	}
	return b
}

// ValidCoordinates reports whether lat/lon fall in the representable range.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
