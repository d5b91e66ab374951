package cli

import (
	"github.com/spf13/cobra"

	"energy-flow-monitor/internal/app"
)

var showLimit int

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print current period totals and recent daily snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{Limit: showLimit})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 14, "Maximum daily snapshots to print")
}
