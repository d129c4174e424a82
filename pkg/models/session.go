package models

import "time"

// SessionStatus is the lifecycle state of a scraping session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionTimeout   SessionStatus = "timeout"
)

// IsTerminal reports whether the status ends a session.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionTimeout
}

// ScrapingSession is one scraping run with its aggregated counters and the
// log entries attributed to it.
type ScrapingSession struct {
	ID            string        `json:"id" yaml:"id"`
	UserID        string        `json:"user_id" yaml:"user_id"`
	UserEmail     string        `json:"user_email,omitempty" yaml:"user_email,omitempty"`
	SearchQuery   string        `json:"search_query" yaml:"search_query"`
	StartTime     time.Time     `json:"start_time" yaml:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Status        SessionStatus `json:"status" yaml:"status"`
	TotalURLs     int           `json:"total_urls" yaml:"total_urls"`
	ProcessedURLs int           `json:"processed_urls" yaml:"processed_urls"`
	SuccessCount  int           `json:"success_count" yaml:"success_count"`
	ErrorCount    int           `json:"error_count" yaml:"error_count"`
	WarningCount  int           `json:"warning_count" yaml:"warning_count"`
	Logs          []LogEntry    `json:"logs" yaml:"logs"`
	URLs          []string      `json:"urls" yaml:"urls"`
	DurationMS    int64         `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}

// Clone returns a deep copy so callers can read a session without holding
// the registry lock.
func (s *ScrapingSession) Clone() *ScrapingSession {
	cp := *s
	if s.EndTime != nil {
		t := *s.EndTime
		cp.EndTime = &t
	}
	cp.Logs = append([]LogEntry(nil), s.Logs...)
	cp.URLs = append([]string(nil), s.URLs...)
	return &cp
}

// SessionContext is the correlation context attached to log calls that name
// a session.
type SessionContext struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Domain    string    `json:"domain"`
	Step      string    `json:"step"`
	Attempt   int       `json:"attempt"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Fields returns the context as a flat map suitable for merging into event
// data. Empty optional fields are omitted.
func (c SessionContext) Fields() map[string]any {
	m := map[string]any{
		"sessionId": c.SessionID,
		"userId":    c.UserID,
		"domain":    c.Domain,
		"step":      c.Step,
		"attempt":   c.Attempt,
	}
	if c.URL != "" {
		m["url"] = c.URL
	}
	return m
}

// SessionStats summarises the registry's in-memory state.
type SessionStats struct {
	TotalLogs        int    `json:"total_logs"`
	TotalErrors      int    `json:"total_errors"`
	TotalSessions    int    `json:"total_sessions"`
	ActiveSessions   int    `json:"active_sessions"`
	CurrentSessionID string `json:"current_session_id,omitempty"`
}
