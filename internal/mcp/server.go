// Package mcp provides an MCP (Model Context Protocol) server that exposes
// scrapewatch sessions, logs, metrics and alerts as MCP tools.
package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/scrapewatch/internal/core"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

// SessionSource is the read side of the session registry.
type SessionSource interface {
	LoadAllSessionsFromFiles() []models.ScrapingSession
	GetSession(id string) (*models.ScrapingSession, bool)
	LoadLogsFromFile(date string) []models.LogEntry
	LoadScrapingErrorsByDomain() map[string]models.DomainLogs
	GetStats() models.SessionStats
}

// MetricsSource is the part of the metrics monitor the server reads and
// acknowledges alerts through.
type MetricsSource interface {
	CalculateDerivedMetrics() map[string]models.Metric
	GetMetricsSummary() models.MetricsSummary
	GetAlertsForDashboard() models.AlertDashboard
	AcknowledgeAlert(id string) bool
	GetTopPerformers(limit int) []models.DomainPerformance
}

// Server wraps scrapewatch services and exposes them as MCP tools.
type Server struct {
	server   *gomcp.Server
	sessions SessionSource
	metrics  MetricsSource
}

// NewServer creates a new MCP server. metrics may be nil when the monitor is
// not running; the metric and alert tools then report an error.
func NewServer(sessions SessionSource, metrics MetricsSource, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		sessions: sessions,
		metrics:  metrics,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "scrapewatch", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type listSessionsInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter sessions by status (running, completed, failed, timeout)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of sessions to return, newest first (0 for all)"`
}

type sessionOutput struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	UserEmail     string `json:"user_email,omitempty"`
	SearchQuery   string `json:"search_query"`
	Status        string `json:"status"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time,omitempty"`
	DurationMS    int64  `json:"duration_ms,omitempty"`
	TotalURLs     int    `json:"total_urls"`
	ProcessedURLs int    `json:"processed_urls"`
	SuccessCount  int    `json:"success_count"`
	ErrorCount    int    `json:"error_count"`
	WarningCount  int    `json:"warning_count"`
}

type listSessionsOutput struct {
	Sessions       []sessionOutput `json:"sessions"`
	Count          int             `json:"count"`
	ActiveSessions int             `json:"active_sessions"`
}

type getSessionInput struct {
	SessionID string `json:"session_id" jsonschema:"required,the session identifier (e.g. scrape_user_query_1736935200000)"`
}

type getSessionOutput struct {
	Session sessionOutput `json:"session"`
	URLs    []string      `json:"urls"`
	Logs    []logOutput   `json:"logs"`
}

type logOutput struct {
	ID        string `json:"id"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	URL       string `json:"url,omitempty"`
	Source    string `json:"source"`
	SessionID string `json:"session_id,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Timestamp string `json:"timestamp"`
}

type getLogsInput struct {
	Date       string `json:"date,omitempty" jsonschema:"UTC day to read (YYYY-MM-DD). Defaults to today."`
	ErrorsOnly bool   `json:"errors_only,omitempty" jsonschema:"only return errors and warnings"`
	Domain     string `json:"domain,omitempty" jsonschema:"only return logs bucketed under this domain"`
	SessionID  string `json:"session_id,omitempty" jsonschema:"only return logs attributed to this session"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of lines to return (0 for all)"`
}

type getLogsOutput struct {
	Date  string      `json:"date"`
	Logs  []logOutput `json:"logs"`
	Count int         `json:"count"`
}

type logsByDomainInput struct {
	Date     string `json:"date,omitempty" jsonschema:"UTC day to group (YYYY-MM-DD). Defaults to today. Ignored with profiles."`
	Profiles bool   `json:"profiles,omitempty" jsonschema:"group domain store errors and step successes instead of day logs"`
}

type domainOutput struct {
	Domain       string `json:"domain"`
	Total        int    `json:"total"`
	Errors       int    `json:"errors"`
	Warnings     int    `json:"warnings"`
	Successes    int    `json:"successes"`
	LastActivity string `json:"last_activity,omitempty"`
}

type logsByDomainOutput struct {
	Domains []domainOutput `json:"domains"`
	Count   int            `json:"count"`
}

type getMetricsSummaryInput struct{}

type operationOutput struct {
	Operation string  `json:"operation"`
	Count     int     `json:"count"`
	AvgMS     float64 `json:"avg_ms"`
	MinMS     float64 `json:"min_ms"`
	MaxMS     float64 `json:"max_ms"`
}

type metricsSummaryOutput struct {
	Counters      map[string]int64   `json:"counters"`
	Metrics       map[string]float64 `json:"metrics"`
	Operations    []operationOutput  `json:"operations"`
	Health        string             `json:"health"`
	Components    map[string]string  `json:"components"`
	BufferSize    int                `json:"buffer_size"`
	BufferCap     int                `json:"buffer_capacity"`
	ActiveAlerts  int                `json:"active_alerts"`
	TotalAlerts   int                `json:"total_alerts"`
	UptimeSeconds float64            `json:"uptime_seconds"`
}

type getAlertsInput struct {
	IncludeAcknowledged bool `json:"include_acknowledged,omitempty" jsonschema:"also return acknowledged alerts"`
}

type alertOutput struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Severity     string         `json:"severity"`
	Timestamp    string         `json:"timestamp"`
	Acknowledged bool           `json:"acknowledged"`
	Details      map[string]any `json:"details,omitempty"`
}

type getAlertsOutput struct {
	Alerts     []alertOutput  `json:"alerts"`
	Count      int            `json:"count"`
	BySeverity map[string]int `json:"by_severity"`
}

type acknowledgeAlertInput struct {
	AlertID string `json:"alert_id" jsonschema:"required,the alert identifier returned by get_alerts"`
}

type acknowledgeAlertOutput struct {
	Message string `json:"message"`
}

type topPerformersInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of domains to return. Defaults to 10."`
}

type performerOutput struct {
	Domain        string  `json:"domain"`
	Runs          int     `json:"runs"`
	AvgJobsFound  float64 `json:"avg_jobs_found"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

type topPerformersOutput struct {
	Domains []performerOutput `json:"domains"`
	Count   int               `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_sessions",
		Description: "List scraping sessions from the day files merged with the in-memory registry, newest first.",
	}, s.handleListSessions)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_session",
		Description: "Get one scraping session by ID with its counters, URLs and attributed log lines.",
	}, s.handleGetSession)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_logs",
		Description: "Get the captured log lines of one UTC day, newest first, optionally filtered to errors, a domain or a session.",
	}, s.handleGetLogs)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "logs_by_domain",
		Description: "Group a day's log lines (or the domain store's recorded errors and step successes) by hostname with error, warning and success counts.",
	}, s.handleLogsByDomain)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics_summary",
		Description: "Recalculate derived metrics and return counters, error and cache hit rates, operation timings and component health.",
	}, s.handleGetMetricsSummary)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Return active alerts, newest first, with a per-severity tally.",
	}, s.handleGetAlerts)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "acknowledge_alert",
		Description: "Mark an alert as acknowledged so it no longer counts as active.",
	}, s.handleAcknowledgeAlert)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "top_performers",
		Description: "Rank domains by average jobs found across the scraping results still held in the metrics buffer.",
	}, s.handleTopPerformers)
}

// --- Tool handlers ---

func (s *Server) handleListSessions(_ context.Context, _ *gomcp.CallToolRequest, input listSessionsInput) (*gomcp.CallToolResult, listSessionsOutput, error) {
	if input.Status != "" && !validStatus(input.Status) {
		return errorResult(fmt.Sprintf("invalid status %q: must be one of running, completed, failed, timeout", input.Status)), emptyListSessionsOutput(), nil
	}

	out := emptyListSessionsOutput()
	for _, sess := range s.sessions.LoadAllSessionsFromFiles() {
		if input.Status != "" && string(sess.Status) != input.Status {
			continue
		}
		if input.Limit > 0 && len(out.Sessions) >= input.Limit {
			break
		}
		out.Sessions = append(out.Sessions, sessionToOutput(sess))
	}
	out.Count = len(out.Sessions)
	out.ActiveSessions = s.sessions.GetStats().ActiveSessions

	return nil, out, nil
}

func (s *Server) handleGetSession(_ context.Context, _ *gomcp.CallToolRequest, input getSessionInput) (*gomcp.CallToolResult, getSessionOutput, error) {
	empty := getSessionOutput{URLs: []string{}, Logs: []logOutput{}}
	if input.SessionID == "" {
		return errorResult("session_id is required"), empty, nil
	}

	sess, ok := s.findSession(input.SessionID)
	if !ok {
		return errorResult(fmt.Sprintf("session %s not found", input.SessionID)), empty, nil
	}

	out := getSessionOutput{
		Session: sessionToOutput(sess),
		URLs:    append([]string{}, sess.URLs...),
		Logs:    logsToOutput(sess.Logs),
	}
	return nil, out, nil
}

func (s *Server) handleGetLogs(_ context.Context, _ *gomcp.CallToolRequest, input getLogsInput) (*gomcp.CallToolResult, getLogsOutput, error) {
	date, err := resolveDate(input.Date)
	if err != nil {
		return errorResult(err.Error()), getLogsOutput{Logs: []logOutput{}}, nil
	}

	var kept []models.LogEntry
	for _, e := range s.sessions.LoadLogsFromFile(date) {
		if input.ErrorsOnly && e.Level != models.LevelError && e.Level != models.LevelWarn {
			continue
		}
		if input.Domain != "" && core.DomainForEntry(e) != input.Domain {
			continue
		}
		if input.SessionID != "" && e.SessionID != input.SessionID {
			continue
		}
		if input.Limit > 0 && len(kept) >= input.Limit {
			break
		}
		kept = append(kept, e)
	}

	out := getLogsOutput{
		Date:  date,
		Logs:  logsToOutput(kept),
		Count: len(kept),
	}
	return nil, out, nil
}

func (s *Server) handleLogsByDomain(_ context.Context, _ *gomcp.CallToolRequest, input logsByDomainInput) (*gomcp.CallToolResult, logsByDomainOutput, error) {
	var buckets map[string]models.DomainLogs
	if input.Profiles {
		buckets = s.sessions.LoadScrapingErrorsByDomain()
	} else {
		date, err := resolveDate(input.Date)
		if err != nil {
			return errorResult(err.Error()), logsByDomainOutput{Domains: []domainOutput{}}, nil
		}
		buckets = core.OrganizeLogsByDomain(s.sessions.LoadLogsFromFile(date))
	}

	sorted := core.SortedDomains(buckets)
	out := logsByDomainOutput{
		Domains: make([]domainOutput, len(sorted)),
		Count:   len(sorted),
	}
	for i, b := range sorted {
		d := domainOutput{
			Domain:    b.Domain,
			Total:     b.Total,
			Errors:    b.Errors,
			Warnings:  b.Warnings,
			Successes: b.Successes,
		}
		if !b.LastActivity.IsZero() {
			d.LastActivity = b.LastActivity.UTC().Format(time.RFC3339)
		}
		out.Domains[i] = d
	}
	return nil, out, nil
}

func (s *Server) handleGetMetricsSummary(_ context.Context, _ *gomcp.CallToolRequest, _ getMetricsSummaryInput) (*gomcp.CallToolResult, metricsSummaryOutput, error) {
	if s.metrics == nil {
		return errorResult("metrics monitor not available"), emptyMetricsSummaryOutput(), nil
	}

	s.metrics.CalculateDerivedMetrics()
	summary := s.metrics.GetMetricsSummary()

	out := emptyMetricsSummaryOutput()
	for k, v := range summary.Counters {
		out.Counters[k] = v
	}
	for k, m := range summary.Metrics {
		out.Metrics[k] = m.Value
	}
	for _, op := range sortedKeys(summary.Performance) {
		st := summary.Performance[op]
		out.Operations = append(out.Operations, operationOutput{
			Operation: op,
			Count:     st.Count,
			AvgMS:     st.AvgMS,
			MinMS:     st.MinMS,
			MaxMS:     st.MaxMS,
		})
	}
	out.Health = string(summary.Health.Status)
	for name, c := range summary.Health.Components {
		out.Components[name] = string(c.Status)
	}
	out.BufferSize = summary.BufferSize
	out.BufferCap = summary.BufferCap
	out.ActiveAlerts = summary.ActiveAlerts
	out.TotalAlerts = summary.TotalAlerts
	out.UptimeSeconds = summary.UptimeSeconds

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, input getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	empty := getAlertsOutput{Alerts: []alertOutput{}, BySeverity: map[string]int{}}
	if s.metrics == nil {
		return errorResult("metrics monitor not available"), empty, nil
	}

	dash := s.metrics.GetAlertsForDashboard()
	alerts := dash.Active
	if input.IncludeAcknowledged {
		alerts = append(append([]models.Alert{}, dash.Active...), dash.Acknowledged...)
	}

	out := getAlertsOutput{
		Alerts:     make([]alertOutput, len(alerts)),
		Count:      len(alerts),
		BySeverity: map[string]int{},
	}
	for k, v := range dash.BySeverity {
		out.BySeverity[k] = v
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:           a.ID,
			Type:         a.Type,
			Severity:     string(a.Severity),
			Timestamp:    a.Timestamp.UTC().Format(time.RFC3339),
			Acknowledged: a.Acknowledged,
			Details:      a.Details,
		}
	}
	return nil, out, nil
}

func (s *Server) handleAcknowledgeAlert(_ context.Context, _ *gomcp.CallToolRequest, input acknowledgeAlertInput) (*gomcp.CallToolResult, acknowledgeAlertOutput, error) {
	if s.metrics == nil {
		return errorResult("metrics monitor not available"), acknowledgeAlertOutput{}, nil
	}
	if input.AlertID == "" {
		return errorResult("alert_id is required"), acknowledgeAlertOutput{}, nil
	}
	if !s.metrics.AcknowledgeAlert(input.AlertID) {
		return errorResult(fmt.Sprintf("alert %s not found", input.AlertID)), acknowledgeAlertOutput{}, nil
	}
	return nil, acknowledgeAlertOutput{Message: fmt.Sprintf("alert %s acknowledged", input.AlertID)}, nil
}

func (s *Server) handleTopPerformers(_ context.Context, _ *gomcp.CallToolRequest, input topPerformersInput) (*gomcp.CallToolResult, topPerformersOutput, error) {
	if s.metrics == nil {
		return errorResult("metrics monitor not available"), topPerformersOutput{Domains: []performerOutput{}}, nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	ranked := s.metrics.GetTopPerformers(limit)
	out := topPerformersOutput{
		Domains: make([]performerOutput, len(ranked)),
		Count:   len(ranked),
	}
	for i, p := range ranked {
		out.Domains[i] = performerOutput{
			Domain:        p.Domain,
			Runs:          p.Runs,
			AvgJobsFound:  p.AvgJobsFound,
			AvgDurationMS: p.AvgDurationMS,
		}
	}
	return nil, out, nil
}

// --- Helpers ---

func (s *Server) findSession(id string) (models.ScrapingSession, bool) {
	if sess, ok := s.sessions.GetSession(id); ok {
		return *sess, true
	}
	for _, sess := range s.sessions.LoadAllSessionsFromFiles() {
		if sess.ID == id {
			return sess, true
		}
	}
	return models.ScrapingSession{}, false
}

func sessionToOutput(s models.ScrapingSession) sessionOutput {
	out := sessionOutput{
		ID:            s.ID,
		UserID:        s.UserID,
		UserEmail:     s.UserEmail,
		SearchQuery:   s.SearchQuery,
		Status:        string(s.Status),
		StartTime:     s.StartTime.UTC().Format(time.RFC3339),
		DurationMS:    s.DurationMS,
		TotalURLs:     s.TotalURLs,
		ProcessedURLs: s.ProcessedURLs,
		SuccessCount:  s.SuccessCount,
		ErrorCount:    s.ErrorCount,
		WarningCount:  s.WarningCount,
	}
	if s.EndTime != nil {
		out.EndTime = s.EndTime.UTC().Format(time.RFC3339)
	}
	return out
}

func logsToOutput(logs []models.LogEntry) []logOutput {
	out := make([]logOutput, len(logs))
	for i, e := range logs {
		out[i] = logOutput{
			ID:        e.ID,
			Level:     string(e.Level),
			Message:   e.Message,
			URL:       e.URL,
			Source:    e.Source,
			SessionID: e.SessionID,
			Outcome:   string(e.Outcome),
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return out
}

func validStatus(s string) bool {
	switch models.SessionStatus(s) {
	case models.SessionRunning, models.SessionCompleted, models.SessionFailed, models.SessionTimeout:
		return true
	}
	return false
}

func emptyListSessionsOutput() listSessionsOutput {
	return listSessionsOutput{Sessions: []sessionOutput{}}
}

func emptyMetricsSummaryOutput() metricsSummaryOutput {
	return metricsSummaryOutput{
		Counters:   make(map[string]int64),
		Metrics:    make(map[string]float64),
		Operations: []operationOutput{},
		Components: make(map[string]string),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// resolveDate validates a YYYY-MM-DD argument; empty means today (UTC).
func resolveDate(s string) (string, error) {
	if s == "" {
		return time.Now().UTC().Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return "", fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return s, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
