package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	swmcp "github.com/valter-silva-au/scrapewatch/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the scrapewatch MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scrapewatch MCP server on stdio",
	Long: `Start the scrapewatch MCP server on stdio transport.

The server exposes sessions, logs and metrics as MCP tools: list_sessions,
get_session, get_logs, logs_by_domain, get_metrics_summary, get_alerts,
acknowledge_alert, top_performers. The metrics flush and health check jobs
run for as long as the server does.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return fmt.Errorf("session registry not initialized")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if StartPipeline != nil {
			if err := StartPipeline(ctx); err != nil {
				return err
			}
		}

		var metrics swmcp.MetricsSource
		if Monitor != nil {
			metrics = Monitor
		}
		srv := swmcp.NewServer(Registry, metrics, appVersion)

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
