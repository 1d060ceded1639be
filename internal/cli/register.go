package cli

import (
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register-commands",
	Short: "Install the global Discord slash commands (faucet, score)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RegisterCommands(cmd.Context())
	},
}
