package cli

import (
	"time"

	"github.com/spf13/cobra"

	"callwatch/internal/app"
)

var pruneOlderThan time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old analyses from the history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Prune(cmd.Context(), cmd.OutOrStdout(), app.PruneOptions{OlderThan: pruneOlderThan})
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "Age cutoff (defaults to retention.max_age)")
}
