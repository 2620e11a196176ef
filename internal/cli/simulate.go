package cli

import (
	"github.com/spf13/cobra"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/app"
)

var (
	simulateCount  int
	simulateLat    float64
	simulateLon    float64
	simulateDepth  float64
	simulateSpread float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive synthetic readings through the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			Count:       simulateCount,
			Lat:         simulateLat,
			Lon:         simulateLon,
			DepthMeters: simulateDepth,
			Spread:      simulateSpread,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateCount, "count", 10, "Number of synthetic readings")
	simulateCmd.Flags().Float64Var(&simulateLat, "lat", 47.6062, "Center latitude")
	simulateCmd.Flags().Float64Var(&simulateLon, "lon", -122.3321, "Center longitude")
	simulateCmd.Flags().Float64Var(&simulateDepth, "depth", 12, "Base depth in meters")
	simulateCmd.Flags().Float64Var(&simulateSpread, "spread", 0.5, "Random depth spread in meters")
}
