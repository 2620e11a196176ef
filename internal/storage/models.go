package storage

import (
	"time"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
)

// GridCell is one aggregated cell of a bounding-box query, used by map
// overlays. Cell indices are floor(lat/cellSize) and floor(lon/cellSize).
type GridCell struct {
	LatIndex      int64   `json:"lat_index"`
	LonIndex      int64   `json:"lon_index"`
	CenterLat     float64 `json:"center_lat"`
	CenterLon     float64 `json:"center_lon"`
	AvgDepth      float64 `json:"avg_depth"`
	MinDepth      float64 `json:"min_depth"`
	MaxDepth      float64 `json:"max_depth"`
	Count         int64   `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// AlertRecord captures an emitted safety alert for auditing.
type AlertRecord struct {
	ID        int64
	AlertID   string
	Type      string
	Severity  string
	Position  geo.Point
	Message   string
	CreatedAt time.Time
}
