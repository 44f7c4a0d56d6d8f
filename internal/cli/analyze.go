package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"callwatch/internal/app"
)

var analyzeDryRun bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <text>",
	Short: "Run the analysis pipeline over a message without relaying it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.AnalyzeOptions{
			Text:   strings.Join(args, " "),
			DryRun: analyzeDryRun,
		}
		return getApp().Analyze(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeDryRun, "dry-run", false, "Stop before the completion call and print the prompt")
}
