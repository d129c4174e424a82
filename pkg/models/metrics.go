package models

import "time"

// RecordKind distinguishes buffered counter events from timing samples.
type RecordKind string

const (
	RecordEvent  RecordKind = "event"
	RecordTiming RecordKind = "timing"
)

// MetricRecord is one entry in the metrics monitor buffer. For events Value
// is 1; for timings it is the duration in milliseconds.
type MetricRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      RecordKind     `json:"kind"`
	Category  string         `json:"category"`
	Operation string         `json:"operation,omitempty"`
	Value     float64        `json:"value"`
	Details   map[string]any `json:"details,omitempty"`
}

// Metric is the latest value of a derived metric.
type Metric struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// PerformanceSample is one timing observation for an operation.
type PerformanceSample struct {
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// OperationStats summarises the retained samples of one operation.
type OperationStats struct {
	Count int     `json:"count"`
	AvgMS float64 `json:"avg_ms"`
	MinMS float64 `json:"min_ms"`
	MaxMS float64 `json:"max_ms"`
}

// HealthStatus is the state of a component or of the whole system.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth is the last observed health of one component.
type ComponentHealth struct {
	Status    HealthStatus   `json:"status"`
	LastCheck time.Time      `json:"last_check"`
	Details   map[string]any `json:"details,omitempty"`
}

// SystemHealth aggregates component health.
type SystemHealth struct {
	Status     HealthStatus               `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	LastCheck  time.Time                  `json:"last_check"`
}

// DomainPerformance ranks a domain by scraping results still held in the
// metrics buffer.
type DomainPerformance struct {
	Domain        string  `json:"domain"`
	Runs          int     `json:"runs"`
	AvgJobsFound  float64 `json:"avg_jobs_found"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// MetricsSummary is the read model returned to dashboards and the MCP server.
type MetricsSummary struct {
	Counters      map[string]int64          `json:"counters"`
	Metrics       map[string]Metric         `json:"metrics"`
	Performance   map[string]OperationStats `json:"performance"`
	Health        SystemHealth              `json:"health"`
	BufferSize    int                       `json:"buffer_size"`
	BufferCap     int                       `json:"buffer_capacity"`
	ActiveAlerts  int                       `json:"active_alerts"`
	TotalAlerts   int                       `json:"total_alerts"`
	UptimeSeconds float64                   `json:"uptime_seconds"`
}
