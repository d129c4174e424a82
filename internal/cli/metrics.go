package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/scrapewatch/internal/observability"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

var (
	metricsJSON     bool
	metricsSince    string
	metricsCategory string
	metricsSource   string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarise flushed metric records",
	Long: `Read the metrics-YYYY-MM-DD.jsonl files written by the file sink and
print a digest: record counts per category, summed timing duration, timed
operations and the covered timespan.

With --source sqlite the records come from the metrics table of the sqlite
sink instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil {
			return fmt.Errorf("configuration not initialized")
		}

		sinceTime, err := parseSinceDuration(metricsSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		var records []models.MetricRecord
		switch metricsSource {
		case "", "file":
			records, err = readMetricsSince(filepath.Join(Config.DataDir, "metrics"), sinceTime, metricsCategory)
		case "sqlite":
			if MetricsStore == nil {
				return fmt.Errorf("sqlite metrics sink not enabled (add sqlite to metrics.sinks)")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			records, err = MetricsStore.MetricsSince(ctx, sinceTime)
			records = filterCategory(records, metricsCategory)
		default:
			return fmt.Errorf("unknown --source %q (valid: file, sqlite)", metricsSource)
		}
		if err != nil {
			return err
		}
		digest := observability.Summarize(records)

		out := cmd.OutOrStdout()
		if metricsJSON {
			data, err := json.MarshalIndent(digest, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		renderDigest(out, digest, sinceTime)
		return nil
	},
}

// readMetricsSince reads every daily metrics file from since's day through
// today, keeping records at or after since.
func readMetricsSince(dir string, since time.Time, category string) ([]models.MetricRecord, error) {
	sink, err := observability.NewFileSink(dir)
	if err != nil {
		return nil, err
	}
	filter := observability.MetricsFilter{Since: &since, Category: category}

	var all []models.MetricRecord
	today := time.Now().UTC().Truncate(24 * time.Hour)
	for day := since.UTC().Truncate(24 * time.Hour); !day.After(today); day = day.AddDate(0, 0, 1) {
		records, err := observability.ReadMetricsFile(sink.Path(day), filter)
		if err != nil {
			return nil, fmt.Errorf("reading metrics for %s: %w", day.Format("2006-01-02"), err)
		}
		all = append(all, records...)
	}
	return all, nil
}

func renderDigest(w io.Writer, d observability.Digest, since time.Time) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Metrics since %s", since.Format("2006-01-02 15:04"))))
	fmt.Fprintf(w, "\n  %-22s %d\n", "Records:", d.Records)
	if d.Records == 0 {
		return
	}
	fmt.Fprintf(w, "  %-22s %.0fms\n", "Summed duration:", d.DurationMS)
	fmt.Fprintf(w, "  %-22s %s → %s (%s)\n", "Timespan:",
		d.First.Format(time.RFC3339), d.Last.Format(time.RFC3339), d.Timespan().Round(time.Second))

	fmt.Fprintln(w, "\n"+headerStyle.Render("  By category"))
	for _, k := range sortedKeys(d.Categories) {
		fmt.Fprintf(w, "    %-28s %d\n", k, d.Categories[k])
	}
	if len(d.Operations) > 0 {
		fmt.Fprintln(w, "\n"+headerStyle.Render("  Timed operations"))
		ops := make([]string, 0, len(d.Operations))
		for k := range d.Operations {
			ops = append(ops, k)
		}
		sort.Strings(ops)
		for _, k := range ops {
			fmt.Fprintf(w, "    %-28s %d\n", k, d.Operations[k])
		}
	}
}

// renderSummary prints the live monitor state: derived metrics, counters,
// operation timings and component health.
func renderSummary(w io.Writer, s models.MetricsSummary) {
	fmt.Fprintln(w, headerStyle.Render("Metrics"))
	fmt.Fprintf(w, "  %-22s %.1f%%\n", "Error rate:", s.Metrics[observability.MetricErrorRate].Value*100)
	fmt.Fprintf(w, "  %-22s %.1f%%\n", "Cache hit rate:", s.Metrics[observability.MetricCacheHitRate].Value*100)
	fmt.Fprintf(w, "  %-22s %.0fms\n", "Avg response time:", s.Metrics[observability.MetricAvgResponseTime].Value)
	fmt.Fprintf(w, "  %-22s %d/%d\n", "Buffered records:", s.BufferSize, s.BufferCap)

	if len(s.Counters) > 0 {
		fmt.Fprintln(w, "\n  Counters:")
		keys := make([]string, 0, len(s.Counters))
		for k := range s.Counters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "    %-28s %d\n", k, s.Counters[k])
		}
	}

	if len(s.Performance) > 0 {
		fmt.Fprintln(w, "\n  Operations:")
		ops := make([]string, 0, len(s.Performance))
		for k := range s.Performance {
			ops = append(ops, k)
		}
		sort.Strings(ops)
		for _, k := range ops {
			st := s.Performance[k]
			fmt.Fprintf(w, "    %-28s n=%d avg=%.0fms min=%.0fms max=%.0fms\n", k, st.Count, st.AvgMS, st.MinMS, st.MaxMS)
		}
	}

	if len(s.Health.Components) > 0 {
		fmt.Fprintf(w, "\n  Health: %s\n", styleForHealth(s.Health.Status).Render(string(s.Health.Status)))
		names := make([]string, 0, len(s.Health.Components))
		for k := range s.Health.Components {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, name := range names {
			c := s.Health.Components[name]
			fmt.Fprintf(w, "    %-28s %s\n", name, styleForHealth(c.Status).Render(string(c.Status)))
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// parseSinceDuration parses a human-friendly duration string like "7d", "30d",
// or "24h" and returns the corresponding time in the past.
func parseSinceDuration(s string) (time.Time, error) {
	now := time.Now().UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return now.AddDate(0, 0, -days), nil
	}

	if strings.HasSuffix(s, "h") {
		hours, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid hour duration %q", s)
		}
		return now.Add(-time.Duration(hours) * time.Hour), nil
	}

	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
}

func filterCategory(records []models.MetricRecord, category string) []models.MetricRecord {
	if category == "" {
		return records
	}
	out := make([]models.MetricRecord, 0, len(records))
	for _, r := range records {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output the digest as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window (e.g. 7d, 30d, 24h)")
	metricsCmd.Flags().StringVar(&metricsCategory, "category", "", "Only include records of this category")
	metricsCmd.Flags().StringVar(&metricsSource, "source", "file", "Where to read records from (file, sqlite)")
	rootCmd.AddCommand(metricsCmd)
}
