package models

import "time"

// LogLevel is the severity of a captured log entry.
type LogLevel string

const (
	LevelLog   LogLevel = "log"
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Outcome is the structured result a producer attaches to a log line about
// a scraped URL.
type Outcome string

const (
	OutcomeUnknown Outcome = ""
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// LogEntry is one captured log line. Entries are never mutated after
// creation.
type LogEntry struct {
	ID         string    `json:"id"`
	Level      LogLevel  `json:"level"`
	Message    string    `json:"message"`
	Stack      string    `json:"stack,omitempty"`
	URL        string    `json:"url,omitempty"`
	LineNumber int       `json:"line_number,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	SessionID  string    `json:"session_id,omitempty"`
	Outcome    Outcome   `json:"outcome,omitempty"`
}

// DomainLogs groups log entries that share a hostname.
type DomainLogs struct {
	Domain       string     `json:"domain"`
	Logs         []LogEntry `json:"logs"`
	Total        int        `json:"total"`
	Errors       int        `json:"errors"`
	Warnings     int        `json:"warnings"`
	Successes    int        `json:"successes"`
	LastActivity time.Time  `json:"last_activity"`
}

// DomainError is one historical scraping error recorded for a domain.
type DomainError struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Step      string    `json:"step" yaml:"step"`
	Message   string    `json:"message" yaml:"message"`
	URL       string    `json:"url,omitempty" yaml:"url,omitempty"`
}

// StepStats aggregates outcomes of one scraping step for a domain.
type StepStats struct {
	Successes     int        `json:"successes" yaml:"successes"`
	Failures      int        `json:"failures" yaml:"failures"`
	AvgDurationMS float64    `json:"avg_duration_ms" yaml:"avg_duration_ms"`
	LastSuccess   *time.Time `json:"last_success,omitempty" yaml:"last_success,omitempty"`
}

// DomainProfile is the per-domain error and step metrics record kept by the
// scraper.
type DomainProfile struct {
	Domain string               `json:"domain" yaml:"domain"`
	Errors []DomainError        `json:"errors" yaml:"errors"`
	Steps  map[string]StepStats `json:"steps" yaml:"steps"`
}
