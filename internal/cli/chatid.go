package cli

import (
	"github.com/spf13/cobra"
)

var chatIDCmd = &cobra.Command{
	Use:   "chat-id",
	Short: "Reply to every message with the id of its chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ChatID(cmd.Context())
	},
}
