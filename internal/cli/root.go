package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "scrapewatch",
	Short: "scrapewatch - telemetry and session observability for scrapers",
	Long: `scrapewatch collects the telemetry a job-scraping pipeline emits:
structured events, scraping sessions with their console logs, and runtime
metrics with threshold alerts.

Producers feed it line-delimited JSON through "ingest"; the other commands
read back the day files, domain profiles and metrics it persisted, and
"mcp serve" exposes the same views to MCP clients.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "scrapewatch %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
