package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/app"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

var (
	submitLat      float64
	submitLon      float64
	submitDepth    float64
	submitAccuracy float64
	submitSpeed    float64
	submitMethod   string
	submitAt       string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a single depth reading",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !reading.Method(submitMethod).Valid() {
			return fmt.Errorf("invalid --method value %q", submitMethod)
		}

		opts := app.SubmitOptions{
			Lat:         submitLat,
			Lon:         submitLon,
			DepthMeters: submitDepth,
			GPSAccuracy: submitAccuracy,
			Method:      submitMethod,
		}

		if cmd.Flags().Changed("speed") {
			speed := submitSpeed
			opts.SpeedMPS = &speed
		}

		if submitAt != "" {
			at, err := time.Parse(time.RFC3339, submitAt)
			if err != nil {
				return fmt.Errorf("invalid --at value: %w", err)
			}
			opts.Timestamp = &at
		}

		return getApp().Submit(cmd.Context(), opts)
	},
}

func init() {
	submitCmd.Flags().Float64Var(&submitLat, "lat", 0, "Latitude in decimal degrees")
	submitCmd.Flags().Float64Var(&submitLon, "lon", 0, "Longitude in decimal degrees")
	submitCmd.Flags().Float64Var(&submitDepth, "depth", 0, "Measured depth in meters")
	submitCmd.Flags().Float64Var(&submitAccuracy, "accuracy", 5, "GPS accuracy in meters")
	submitCmd.Flags().Float64Var(&submitSpeed, "speed", 0, "Vessel speed in m/s")
	submitCmd.Flags().StringVar(&submitMethod, "method", "sonar", "Measurement method (sonar, lead_line, chart, visual)")
	submitCmd.Flags().StringVar(&submitAt, "at", "", "Measurement timestamp (RFC3339, defaults to now)")

	_ = submitCmd.MarkFlagRequired("lat")
	_ = submitCmd.MarkFlagRequired("lon")
	_ = submitCmd.MarkFlagRequired("depth")
}
