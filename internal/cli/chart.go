package cli

import (
	"github.com/spf13/cobra"

	"callwatch/internal/app"
)

var (
	chartDays []int
	chartOut  string
)

var chartCmd = &cobra.Command{
	Use:   "chart <coin-id|address>",
	Short: "Render USD price charts for a coin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ChartOptions{
			Target:    args[0],
			Days:      chartDays,
			OutputDir: chartOut,
		}
		return getApp().Chart(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	chartCmd.Flags().IntSliceVar(&chartDays, "days", nil, "Chart windows in days (defaults to charts.days)")
	chartCmd.Flags().StringVar(&chartOut, "out", "", "Output directory (defaults to charts.output_dir)")
}
