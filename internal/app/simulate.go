package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"text/tabwriter"
	"time"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

// Simulate drives synthetic readings through the full pipeline, exercising
// validation, scoring, and alerting without touching the canonical store.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Count <= 0 {
		return errors.New("--count must be greater than zero")
	}
	spread := opts.Spread
	if spread <= 0 {
		spread = 0.5
	}

	sess, err := a.newSession(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	base := time.Now().Add(-time.Duration(opts.Count) * time.Minute)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "#\tOutcome\tDepth\tConfidence\tSafety\tWarnings")

	for i := 0; i < opts.Count; i++ {
		depth := opts.DepthMeters + (rng.Float64()*2-1)*spread
		candidate := reading.CandidateReading{
			Position: geo.Point{
				Lat: opts.Lat + (rng.Float64()*2-1)*0.001,
				Lon: opts.Lon + (rng.Float64()*2-1)*0.001,
			},
			DepthMeters: depth,
			TimestampMs: base.Add(time.Duration(i) * time.Minute).UnixMilli(),
			GPSAccuracy: 2 + rng.Float64()*6,
			Method:      reading.MethodSonar,
			SubmitterID: a.submitterID(),
		}

		res, err := sess.svc.SubmitReading(ctx, candidate)
		if err != nil {
			return err
		}

		confidence := "-"
		safetyStatus := "-"
		if res.Reading != nil {
			confidence = fmt.Sprintf("%.2f", res.Reading.Confidence)
			safetyStatus = string(res.Reading.Safety)
		}
		fmt.Fprintf(writer, "%d\t%s\t%.1f\t%s\t%s\t%d\n",
			i+1, res.Outcome, depth, confidence, safetyStatus, len(res.Validation.Warnings))
	}

	if err := writer.Flush(); err != nil {
		return err
	}

	active := sess.alerts.Active()
	if len(active) > 0 {
		fmt.Fprintf(os.Stdout, "\nactive alerts: %d\n", len(active))
		for _, alert := range active {
			fmt.Fprintf(os.Stdout, "  [%s] %s: %s\n", alert.Severity, alert.Type, alert.Message)
		}
	}
	return nil
}
