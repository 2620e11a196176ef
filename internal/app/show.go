package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/storage"
)

// Show prints recent readings or alert records from the canonical store.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show readings")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		return a.showAlerts(ctx, store, opts.Limit)
	}

	readings, err := store.ListRecentReadings(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		fmt.Fprintln(os.Stdout, "no readings found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tLat\tLon\tRaw\tCorrected\tConfidence\tSafety\tReliability\tMethod")

	for _, r := range readings {
		fmt.Fprintf(
			writer,
			"%s\t%.5f\t%.5f\t%.1f\t%.1f\t%.2f\t%s\t%s\t%s\n",
			r.Candidate.Time().Format(time.RFC3339),
			r.Candidate.Position.Lat,
			r.Candidate.Position.Lon,
			r.Candidate.DepthMeters,
			r.Corrected,
			r.Confidence,
			r.Safety,
			r.Reliability,
			r.Candidate.Method,
		)
	}

	return writer.Flush()
}

func (a *App) showAlerts(ctx context.Context, store *storage.Store, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tType\tSeverity\tLat\tLon\tMessage")

	for _, rec := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%.5f\t%.5f\t%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Type,
			rec.Severity,
			rec.Position.Lat,
			rec.Position.Lon,
			sanitizeInline(rec.Message),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
