package cli

import (
	"github.com/spf13/cobra"
)

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "List sampled markets with their stored range and row count",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Markets(cmd.Context())
	},
}
