package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/app"
)

var syncWait time.Duration

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the offline queue into the canonical store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sync(cmd.Context(), app.SyncOptions{Wait: syncWait})
	},
}

func init() {
	syncCmd.Flags().DurationVar(&syncWait, "wait", 0, "Abort the drain after this duration (0 means no limit)")
}
