package main

import (
	"github.com/spf13/cobra"

	"sitesmith/internal/config"
	"sitesmith/internal/credentials"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Store or remove the OpenRouter API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := credentials.NewManager()
		p := credentials.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
		if !manager.Exists() {
			if _, err := credentials.Onboard(manager, p); err != nil {
				return err
			}
			return config.EnsureDefaultConfig(config.ProviderOpenRouter)
		}
		return credentials.SetupMenu(manager, p)
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
