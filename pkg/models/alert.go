package models

import "time"

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityHigh     AlertSeverity = "high"
	SeverityMedium   AlertSeverity = "medium"
	SeverityLow      AlertSeverity = "low"
)

// Rank orders severities; higher is more urgent.
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Alert types raised by the metrics monitor.
const (
	AlertHighErrorRate      = "high-error-rate"
	AlertLowCacheHitRate    = "low-cache-hit-rate"
	AlertSlowOperation      = "slow-operation"
	AlertHighQueueLength    = "high-queue-length"
	AlertComponentUnhealthy = "component-unhealthy"
	AlertErrorBurst         = "error-burst"
)

// Alert is a single threshold breach. Alerts accumulate; a repeated type
// produces a new alert rather than replacing the previous one.
type Alert struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Timestamp      time.Time      `json:"timestamp"`
	Details        map[string]any `json:"details,omitempty"`
	Severity       AlertSeverity  `json:"severity"`
	Acknowledged   bool           `json:"acknowledged"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
}

// AlertDashboard is the alert view handed to dashboards.
type AlertDashboard struct {
	Active       []Alert        `json:"active"`
	Acknowledged []Alert        `json:"acknowledged"`
	BySeverity   map[string]int `json:"by_severity"`
	Total        int            `json:"total"`
}
