package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/scrapewatch/internal/core"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

var (
	logsDate    string
	logsErrors  bool
	logsDomain  string
	logsSession string
	logsLimit   int
	logsJSON    bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show captured log lines for a day",
	Long: `Show the log lines stored in console-logs-YYYY-MM-DD.json for one UTC
day, newest first. Filters narrow the list to errors and warnings, one
domain or one session.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Registry == nil {
			return fmt.Errorf("session registry not initialized")
		}
		date, err := resolveDate(logsDate)
		if err != nil {
			return err
		}

		logs := filterLogs(Registry.LoadLogsFromFile(date), logsErrors, logsDomain, logsSession)
		if logsLimit > 0 && len(logs) > logsLimit {
			logs = logs[:logsLimit]
		}

		out := cmd.OutOrStdout()
		if logsJSON {
			return writeJSON(out, logs)
		}
		if len(logs) == 0 {
			fmt.Fprintf(out, "No logs for %s.\n", date)
			return nil
		}
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Logs %s (%d)", date, len(logs))))
		fmt.Fprintln(out)
		for _, e := range logs {
			renderLogLine(out, e)
		}
		return nil
	},
}

func filterLogs(logs []models.LogEntry, errorsOnly bool, domain, sessionID string) []models.LogEntry {
	out := make([]models.LogEntry, 0, len(logs))
	for _, e := range logs {
		if errorsOnly && e.Level != models.LevelError && e.Level != models.LevelWarn {
			continue
		}
		if domain != "" && core.DomainForEntry(e) != domain {
			continue
		}
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		out = append(out, e)
	}
	return out
}

func renderLogLine(w io.Writer, e models.LogEntry) {
	level := styleForLevel(e.Level).Render(fmt.Sprintf("%-5s", e.Level))
	fmt.Fprintf(w, "  %s %s %s\n", dimStyle.Render(e.Timestamp.UTC().Format("15:04:05")), level, e.Message)
	if e.URL != "" {
		fmt.Fprintf(w, "                 %s\n", dimStyle.Render(e.URL))
	}
}

// resolveDate validates a YYYY-MM-DD flag value; empty means today (UTC).
func resolveDate(s string) (string, error) {
	if s == "" {
		return time.Now().UTC().Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return "", fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return s, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func init() {
	logsCmd.Flags().StringVar(&logsDate, "date", "", "Day to show (YYYY-MM-DD, default today UTC)")
	logsCmd.Flags().BoolVar(&logsErrors, "errors", false, "Only errors and warnings")
	logsCmd.Flags().StringVar(&logsDomain, "domain", "", "Only logs bucketed under this domain")
	logsCmd.Flags().StringVar(&logsSession, "session", "", "Only logs attributed to this session")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 0, "Maximum number of lines (0 for all)")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(logsCmd)
}
