// Package cli provides the command-line interface for veritest.
package cli

import (
	"os"

	"github.com/jfellner/veritest-go/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string

	// Shared server client
	api *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "veritest",
	Short: "Healthcare compliance test case pipeline",
	Long: `Veritest generates healthcare compliance test cases from requirements
documents, exports approved test cases to Jira in audited batches, and
packages the audit trail into a verifiable evidence bundle.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		api = client.New(serverURL)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "veritest server URL (default $VERITEST_SERVER_URL or http://localhost:8585)")
}
