package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set via -ldflags during build
var Version = "dev"

var jsonLogs bool

var rootCmd = &cobra.Command{
	Use:   "sitesmith",
	Short: "Build and preview web projects from a prompt",
	Long: `sitesmith asks a model for a project, folds the build steps it returns
into a file tree, mounts the tree into a local sandbox and runs the dev server
until it reports a preview URL.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sitesmith version %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Write structured logs as JSON")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
