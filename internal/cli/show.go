package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"gridpulse/internal/app"
)

var (
	showZone  string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Zone:  showZone,
			Limit: showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showZone, "zone", "", "Zone to display (default: latest row per zone)")
	showCmd.Flags().IntVar(&showLimit, "limit", 24, "Number of rows to display per zone")
}
