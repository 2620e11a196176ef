package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

// Submit processes a single reading and prints the outcome as JSON. Queued
// readings are left for a later sync pass.
func (a *App) Submit(ctx context.Context, opts SubmitOptions) error {
	sess, err := a.newSession(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	ts := time.Now()
	if opts.Timestamp != nil {
		ts = *opts.Timestamp
	}

	method := reading.Method(opts.Method)
	candidate := reading.CandidateReading{
		Position:    geo.Point{Lat: opts.Lat, Lon: opts.Lon},
		DepthMeters: opts.DepthMeters,
		TimestampMs: ts.UnixMilli(),
		GPSAccuracy: opts.GPSAccuracy,
		SpeedMPS:    opts.SpeedMPS,
		Method:      method,
		SubmitterID: a.submitterID(),
	}

	res, err := sess.svc.SubmitReading(ctx, candidate)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
