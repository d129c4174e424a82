package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

var (
	sessionsJSON   bool
	sessionsLimit  int
	sessionsStatus string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List scraping sessions",
	Long: `List every scraping session found in the day files merged with the
sessions held in memory, newest first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return fmt.Errorf("session registry not initialized")
		}

		sessions := Registry.LoadAllSessionsFromFiles()
		if sessionsStatus != "" {
			filtered := sessions[:0]
			for _, s := range sessions {
				if string(s.Status) == sessionsStatus {
					filtered = append(filtered, s)
				}
			}
			sessions = filtered
		}
		if sessionsLimit > 0 && len(sessions) > sessionsLimit {
			sessions = sessions[:sessionsLimit]
		}

		out := cmd.OutOrStdout()
		if sessionsJSON {
			return writeJSON(out, sessions)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}

		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Sessions (%d)", len(sessions))))
		fmt.Fprintln(out)
		for _, s := range sessions {
			renderSessionRow(out, s)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session with its logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return fmt.Errorf("session registry not initialized")
		}

		s, ok := findSession(args[0])
		if !ok {
			return fmt.Errorf("session %s not found", args[0])
		}

		out := cmd.OutOrStdout()
		if sessionsJSON {
			return writeJSON(out, s)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%s\n", headerStyle.Render(s.ID))
		fmt.Fprintf(&b, "status:   %s\n", styleForStatus(s.Status).Render(string(s.Status)))
		fmt.Fprintf(&b, "user:     %s %s\n", s.UserID, s.UserEmail)
		fmt.Fprintf(&b, "query:    %s\n", s.SearchQuery)
		fmt.Fprintf(&b, "started:  %s\n", s.StartTime.UTC().Format(time.RFC3339))
		if s.EndTime != nil {
			fmt.Fprintf(&b, "ended:    %s (%s)\n", s.EndTime.UTC().Format(time.RFC3339), time.Duration(s.DurationMS)*time.Millisecond)
		}
		fmt.Fprintf(&b, "urls:     %d/%d processed, %d ok\n", s.ProcessedURLs, s.TotalURLs, s.SuccessCount)
		fmt.Fprintf(&b, "problems: %d errors, %d warnings", s.ErrorCount, s.WarningCount)
		fmt.Fprintln(out, panelStyle.Render(b.String()))

		if len(s.Logs) > 0 {
			fmt.Fprintln(out)
			for _, e := range s.Logs {
				renderLogLine(out, e)
			}
		}
		return nil
	},
}

func findSession(id string) (models.ScrapingSession, bool) {
	if s, ok := Registry.GetSession(id); ok {
		return *s, true
	}
	for _, s := range Registry.LoadAllSessionsFromFiles() {
		if s.ID == id {
			return s, true
		}
	}
	return models.ScrapingSession{}, false
}

func renderSessionRow(w io.Writer, s models.ScrapingSession) {
	status := styleForStatus(s.Status).Render(fmt.Sprintf("%-9s", s.Status))
	fmt.Fprintf(w, "  %s %s  %s\n", status, s.StartTime.UTC().Format("2006-01-02 15:04"), s.ID)
	fmt.Fprintf(w, "            %s\n", dimStyle.Render(fmt.Sprintf(
		"%d/%d urls, %d ok, %d errors, %d warnings", s.ProcessedURLs, s.TotalURLs, s.SuccessCount, s.ErrorCount, s.WarningCount)))
}

func init() {
	sessionsCmd.PersistentFlags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 0, "Maximum number of sessions (0 for all)")
	sessionsCmd.Flags().StringVar(&sessionsStatus, "status", "", "Only sessions with this status")
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
