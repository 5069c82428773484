package cli

import (
	"github.com/spf13/cobra"

	"gridpulse/internal/app"
)

var collectLookback int

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a single fetch-and-score pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.CollectOptions{
			LookbackHours: collectLookback,
		}
		return getApp().Collect(cmd.Context(), opts)
	},
}

func init() {
	collectCmd.Flags().IntVar(&collectLookback, "lookback", 0, "Hours of history to fetch (defaults to config)")
}
