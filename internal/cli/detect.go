package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect <text>",
	Short: "Show the contract address detected in a message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Detect(cmd.OutOrStdout(), strings.Join(args, " "))
	},
}
