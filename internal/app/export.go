package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

// exportDefaultWindow is how far back the export reaches when --from is not
// given.
const exportDefaultWindow = 30 * 24 * time.Hour

// Export renders historical readings as CSV and/or a PNG depth chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-exportDefaultWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	readings, err := store.ListReadingsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		a.Logger.Info().Msg("no readings found for export window")
		return nil
	}

	downsampled := downsampleReadings(readings, opts.MaxPoints)
	a.Logger.Info().Int("total", len(readings)).Int("exported", len(downsampled)).Msg("exporting readings")

	if opts.CSVPath != "" {
		if err := writeReadingsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeReadingsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleReadings(readings []reading.ProcessedDepthReading, max int) []reading.ProcessedDepthReading {
	if max <= 0 || len(readings) <= max {
		return readings
	}

	result := make([]reading.ProcessedDepthReading, 0, max)
	step := float64(len(readings)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(readings) {
			idx = len(readings) - 1
		}
		result = append(result, readings[idx])
	}
	return result
}

func writeReadingsCSV(path string, readings []reading.ProcessedDepthReading) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"measured_at", "lat", "lon", "raw_depth_m", "corrected_depth_m", "confidence", "safety", "reliability", "method", "tide_station"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range readings {
		station := ""
		if r.Tide != nil {
			station = r.Tide.StationID
		}
		record := []string{
			r.Candidate.Time().Format(time.RFC3339),
			strconv.FormatFloat(r.Candidate.Position.Lat, 'f', 6, 64),
			strconv.FormatFloat(r.Candidate.Position.Lon, 'f', 6, 64),
			strconv.FormatFloat(r.Candidate.DepthMeters, 'f', 2, 64),
			strconv.FormatFloat(r.Corrected, 'f', 2, 64),
			strconv.FormatFloat(r.Confidence, 'f', 3, 64),
			string(r.Safety),
			string(r.Reliability),
			string(r.Candidate.Method),
			station,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeReadingsPNG(path string, readings []reading.ProcessedDepthReading) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(readings))
	raw := make([]float64, len(readings))
	corrected := make([]float64, len(readings))
	confidence := make([]float64, len(readings))

	for i, r := range readings {
		x[i] = r.Candidate.Time()
		raw[i] = r.Candidate.DepthMeters
		corrected[i] = r.Corrected
		confidence[i] = r.Confidence
	}

	depthFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Depth (m)",
			ValueFormatter: depthFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name: "Confidence",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Raw depth",
				XValues: x,
				YValues: raw,
			},
			chart.TimeSeries{
				Name:    "Corrected depth",
				XValues: x,
				YValues: corrected,
			},
			chart.TimeSeries{
				Name:    "Confidence",
				XValues: x,
				YValues: confidence,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := graph.Render(chart.PNG, file); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
