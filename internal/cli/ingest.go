package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/scrapewatch/internal/core"
	"github.com/valter-silva-au/scrapewatch/internal/observability"
	"github.com/valter-silva-au/scrapewatch/internal/storage"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

const maxIngestLine = 1024 * 1024

var ingestQuiet bool

// ingestRecord is one line of ingest input. Kind selects which fields apply.
type ingestRecord struct {
	Kind string `json:"kind"`

	// log, emit
	Level    string         `json:"level"`
	Category string         `json:"category"`
	Message  string         `json:"message"`
	Stack    string         `json:"stack"`
	URL      string         `json:"url"`
	Source   string         `json:"source"`
	Outcome  string         `json:"outcome"`
	Data     map[string]any `json:"data"`

	// Session correlation. SessionRef names a session started earlier in
	// the same stream; SessionID names one directly.
	SessionID  string `json:"session_id"`
	SessionRef string `json:"session_ref"`

	// session_start, session_end
	Ref       string   `json:"ref"`
	UserID    string   `json:"user_id"`
	UserEmail string   `json:"user_email"`
	Query     string   `json:"query"`
	URLs      []string `json:"urls"`
	Status    string   `json:"status"`

	// timing, cache, scrape
	Operation  string  `json:"operation"`
	DurationMS float64 `json:"duration_ms"`
	Op         string  `json:"op"`
	Key        string  `json:"key"`
	Domain     string  `json:"domain"`
	Step       string  `json:"step"`
	Success    bool    `json:"success"`
	JobsFound  int     `json:"jobs_found"`
	Error      string  `json:"error"`

	// queue, service_error, health
	Queue     string `json:"queue"`
	Length    int    `json:"length"`
	Service   string `json:"service"`
	Component string `json:"component"`
}

func (r ingestRecord) duration() time.Duration {
	return time.Duration(r.DurationMS * float64(time.Millisecond))
}

// ingestResult counts what one ingest run did.
type ingestResult struct {
	Lines   int            `json:"lines"`
	Skipped int            `json:"skipped"`
	ByKind  map[string]int `json:"by_kind"`
}

// ingester feeds ingest records into the pipeline.
type ingester struct {
	events   *observability.EventLog
	registry *core.SessionRegistry
	monitor  *observability.MetricsMonitor
	domains  storage.DomainStore
	now      func() time.Time

	refs   map[string]string
	result ingestResult
}

func newIngester(events *observability.EventLog, registry *core.SessionRegistry, monitor *observability.MetricsMonitor, domains storage.DomainStore) *ingester {
	return &ingester{
		events:   events,
		registry: registry,
		monitor:  monitor,
		domains:  domains,
		now:      time.Now,
		refs:     make(map[string]string),
		result:   ingestResult{ByKind: make(map[string]int)},
	}
}

// Run reads line-delimited JSON from r until EOF. Blank lines are ignored;
// malformed lines and unknown kinds are counted as skipped.
func (in *ingester) Run(r io.Reader) (ingestResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxIngestLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		in.result.Lines++

		var rec ingestRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			in.skip(fmt.Errorf("line %d: %w", in.result.Lines, err))
			continue
		}
		if err := in.Apply(rec); err != nil {
			in.skip(fmt.Errorf("line %d: %w", in.result.Lines, err))
			continue
		}
		in.result.ByKind[rec.Kind]++
	}
	if err := scanner.Err(); err != nil {
		return in.result, fmt.Errorf("reading ingest input: %w", err)
	}
	return in.result, nil
}

func (in *ingester) skip(err error) {
	in.result.Skipped++
	if Logger != nil {
		Logger.Warn().Err(err).Msg("skipping ingest line")
	}
}

func (in *ingester) sessionID(rec ingestRecord) string {
	if rec.SessionRef != "" {
		return in.refs[rec.SessionRef]
	}
	return rec.SessionID
}

func (in *ingester) sessionOpts(rec ingestRecord) []observability.LogOption {
	var opts []observability.LogOption
	if id := in.sessionID(rec); id != "" {
		opts = append(opts, observability.WithSession(id))
	}
	return opts
}

// Apply feeds one record into the pipeline.
func (in *ingester) Apply(rec ingestRecord) error {
	switch rec.Kind {
	case "log":
		in.registry.CaptureConsoleLog(core.CaptureInput{
			Level:     models.LogLevel(rec.Level),
			Message:   rec.Message,
			Stack:     rec.Stack,
			URL:       rec.URL,
			Source:    rec.Source,
			SessionID: in.sessionID(rec),
			Outcome:   models.Outcome(rec.Outcome),
		})

	case "emit":
		if rec.Category == "" {
			return errors.New("emit requires a category")
		}
		data := copyData(rec.Data)
		if rec.URL != "" {
			data["url"] = rec.URL
		}
		if rec.Outcome != "" {
			data["outcome"] = rec.Outcome
		}
		in.events.Log(rec.Category, rec.Message, data, in.sessionOpts(rec)...)

	case "session_start":
		s := in.registry.CreateScrapingSession(rec.UserID, rec.UserEmail, rec.Query, rec.URLs)
		if rec.Ref != "" {
			in.refs[rec.Ref] = s.ID
		}
		ctx := models.SessionContext{UserID: rec.UserID, Step: "start"}
		if len(rec.URLs) > 0 {
			ctx.URL = rec.URLs[0]
		}
		in.events.SetSessionContext(s.ID, ctx)
		in.monitor.RecordEvent("session-start", map[string]any{"sessionId": s.ID, "urls": len(rec.URLs)})

	case "session_end":
		id := in.sessionID(rec)
		if id == "" {
			return errors.New("session_end requires session_id or session_ref")
		}
		status := models.SessionStatus(rec.Status)
		if status == "" {
			status = models.SessionCompleted
		}
		in.registry.EndScrapingSession(id, status)
		in.events.ClearSessionContext(id)
		in.monitor.RecordEvent("session-"+string(status), map[string]any{"sessionId": id})

	case "event":
		if rec.Category == "" {
			return errors.New("event requires a category")
		}
		in.monitor.RecordEvent(rec.Category, rec.Data)

	case "timing":
		if rec.Operation == "" {
			return errors.New("timing requires an operation")
		}
		in.monitor.RecordTiming(rec.Operation, rec.duration(), rec.Data)
		in.events.Timing(rec.Operation, rec.duration(), rec.Data, in.sessionOpts(rec)...)

	case "cache":
		in.monitor.RecordCacheOperation(rec.Op, rec.Key, rec.duration())
		in.events.Cache(rec.Op, rec.Key, rec.Data, in.sessionOpts(rec)...)

	case "scrape":
		return in.applyScrape(rec)

	case "queue":
		in.monitor.RecordQueueOperation(rec.Queue, rec.Op, rec.Length)
		in.events.Queue(rec.Op, rec.Length, map[string]any{"queue": rec.Queue}, in.sessionOpts(rec)...)

	case "service_error":
		msg := rec.Error
		if msg == "" {
			msg = rec.Message
		}
		err := errors.New(msg)
		in.monitor.RecordServiceError(rec.Service, err, rec.Data)
		in.events.Error(rec.Service, err, rec.Data, in.sessionOpts(rec)...)

	case "health":
		if rec.Component == "" {
			return errors.New("health requires a component")
		}
		in.monitor.RecordSystemHealth(rec.Component, models.HealthStatus(rec.Status), rec.Data)

	default:
		return fmt.Errorf("unknown kind %q", rec.Kind)
	}
	return nil
}

func (in *ingester) applyScrape(rec ingestRecord) error {
	domain := rec.Domain
	if domain == "" && rec.URL != "" {
		domain = observability.ExtractDomain(rec.URL)
	}
	if domain == "" {
		return errors.New("scrape requires a domain or url")
	}
	step := rec.Step
	if step == "" {
		step = "scrape"
	}
	d := rec.duration()

	in.monitor.RecordScrapingOperation(domain, rec.Success, d, rec.JobsFound, rec.Error)

	outcome := models.OutcomeFailure
	action := "failed"
	if rec.Success {
		outcome = models.OutcomeSuccess
		action = "scraped"
	}
	data := copyData(rec.Data)
	data["outcome"] = string(outcome)
	data["jobsFound"] = rec.JobsFound
	if rec.Error != "" {
		data["error"] = rec.Error
	}
	target := rec.URL
	if target == "" {
		target = "https://" + domain
	}
	opts := append(in.sessionOpts(rec), observability.WithExtraContext(map[string]any{"url": target}))
	in.events.Scraper(action, target, data, opts...)

	if in.domains != nil {
		at := in.now()
		if err := in.domains.RecordStep(domain, step, rec.Success, d, at); err != nil && Logger != nil {
			Logger.Warn().Err(err).Str("domain", domain).Msg("failed to record domain step")
		}
		if !rec.Success {
			derr := models.DomainError{Timestamp: at, Step: step, Message: rec.Error, URL: rec.URL}
			if err := in.domains.RecordError(domain, derr); err != nil && Logger != nil {
				Logger.Warn().Err(err).Str("domain", domain).Msg("failed to record domain error")
			}
		}
	}
	return nil
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+4)
	for k, v := range data {
		out[k] = v
	}
	return out
}

// finish flushes buffered events and recomputes derived metrics and health
// so the summary reflects everything ingested.
func (in *ingester) finish() {
	for in.events.Flush() > 0 {
	}
	in.monitor.CalculateDerivedMetrics()
	in.monitor.PerformHealthCheck()
	in.registry.Sync()
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Feed line-delimited JSON telemetry into the pipeline",
	Long: `Read telemetry records as JSON lines from a file, or stdin when no file
is given, and feed them to the event log, session registry and metrics
monitor.

Each line carries a "kind": log, emit, session_start, session_end, event,
timing, cache, scrape, queue, service_error or health. Malformed lines are
skipped. A summary of sessions, metrics and alerts is printed at the end.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if EventLog == nil || Registry == nil || Monitor == nil {
			return fmt.Errorf("pipeline not initialized")
		}

		var r io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()
			r = f
		}

		if StartPipeline != nil {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := StartPipeline(ctx); err != nil {
				return err
			}
		}

		in := newIngester(EventLog, Registry, Monitor, DomainStore)
		result, err := in.Run(r)
		in.finish()
		if err != nil {
			return err
		}

		if ingestQuiet {
			return nil
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render("Ingest summary"))
		fmt.Fprintf(out, "\n  %-18s %d\n", "Lines read:", result.Lines)
		fmt.Fprintf(out, "  %-18s %d\n", "Skipped:", result.Skipped)
		stats := Registry.GetStats()
		fmt.Fprintf(out, "  %-18s %d (%d active)\n", "Sessions:", stats.TotalSessions, stats.ActiveSessions)
		fmt.Fprintf(out, "  %-18s %d (%d errors/warnings)\n\n", "Captured logs:", stats.TotalLogs, stats.TotalErrors)

		renderSummary(out, Monitor.GetMetricsSummary())
		fmt.Fprintln(out)
		renderAlerts(out, Monitor.GetAlertsForDashboard())
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestQuiet, "quiet", "q", false, "Do not print the summary")
	rootCmd.AddCommand(ingestCmd)
}
