package cli

import (
	"github.com/spf13/cobra"
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Retry scoring for observations still missing a sentiment score",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Rescore(cmd.Context())
	},
}
