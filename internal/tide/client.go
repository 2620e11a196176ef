package tide

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/version"
)

const (
	nearestStationPath = "/stations/nearest"
	stationLevelPath   = "/stations/%s/level"
)

// ClientOptions parameterise the tide service client.
type ClientOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client fetches stations and water levels from the tide prediction service.
type Client struct {
	opts    ClientOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a tide service client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "tide_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

type stationResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	DistanceMeters float64 `json:"distance_meters"`
	Datum          string  `json:"chart_datum"`
}

type levelResponse struct {
	StationID string `json:"station_id"`
	Time      string `json:"t"`
	Height    string `json:"v"`
}

// NearestStation returns the closest station within maxDistanceMeters, or
// (nil, nil) when none is in range. A 404 from the service means no station.
func (c *Client) NearestStation(ctx context.Context, lat, lon, maxDistanceMeters float64) (*Station, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("tide service base_url not configured")
	}
	if maxDistanceMeters <= 0 {
		maxDistanceMeters = DefaultMaxStationDistance
	}

	query := url.Values{}
	query.Set("lat", fmt.Sprintf("%.6f", lat))
	query.Set("lon", fmt.Sprintf("%.6f", lon))
	query.Set("max_distance", fmt.Sprintf("%.0f", maxDistanceMeters))

	endpoint := c.baseURL + nearestStationPath + "?" + query.Encode()
	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("tide service status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var resp stationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode station response: %w", err)
	}
	if resp.ID == "" {
		return nil, nil
	}
	if resp.DistanceMeters > maxDistanceMeters {
		return nil, nil
	}

	datum, err := parseHeight(resp.Datum)
	if err != nil {
		return nil, fmt.Errorf("parse chart datum: %w", err)
	}

	return &Station{
		ID:             resp.ID,
		Name:           resp.Name,
		Position:       geo.Point{Lat: resp.Lat, Lon: resp.Lon},
		DistanceMeters: resp.DistanceMeters,
		DatumMeters:    datum,
	}, nil
}

// LevelAt returns the water level at a station for the given time.
func (c *Client) LevelAt(ctx context.Context, stationID string, at time.Time) (float64, error) {
	if c.baseURL == "" {
		return 0, fmt.Errorf("tide service base_url not configured")
	}
	if stationID == "" {
		return 0, fmt.Errorf("station id required")
	}

	endpoint := fmt.Sprintf(c.baseURL+stationLevelPath, url.PathEscape(stationID)) +
		"?t=" + url.QueryEscape(at.UTC().Format(time.RFC3339))

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return 0, err
	}
	if status < 200 || status >= 300 {
		return 0, fmt.Errorf("tide service status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var resp levelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode level response: %w", err)
	}

	level, err := parseHeight(resp.Height)
	if err != nil {
		return 0, fmt.Errorf("parse water level: %w", err)
	}

	c.logger.Debug().Str("station", stationID).Float64("level", level).Msg("fetched tide level")
	return level, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	ua := strings.TrimSpace(c.opts.UserAgent)
	if ua == "" {
		ua = version.UserAgent()
	}
	req.Header.Set("User-Agent", ua)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("tide service request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read tide response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// parseHeight decodes a string-encoded height in meters. The service encodes
// heights as strings to avoid float truncation in intermediaries.
func parseHeight(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

var _ Source = (*Client)(nil)
