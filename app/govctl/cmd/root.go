package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buildgovernor/governor/app/core/config"
)

// Version is set via -ldflags at release build time.
var Version = "dev"

var endpointFlag string

var rootCmd = &cobra.Command{
	Use:     "govctl",
	Short:   "Operator CLI for the build governor",
	Version: Version,
	Long: `govctl talks to a running governor over its local IPC endpoint.

COMMANDS:
  status   Print a one-shot snapshot of the token pool
  watch    Live terminal dashboard of the token pool
  version  Display version information
`,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "govctl:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", config.DefaultEndpointPath(), "governor IPC endpoint path")
}
