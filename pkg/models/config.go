package models

import "time"

// Config holds all settings read from .scrapewatch.yaml via Viper.
type Config struct {
	DataDir       string              `yaml:"data_dir" mapstructure:"data_dir"`
	Logging       LoggingConfig       `yaml:"logging" mapstructure:"logging"`
	EventLog      EventLogConfig      `yaml:"eventlog" mapstructure:"eventlog"`
	Metrics       MetricsConfig       `yaml:"metrics" mapstructure:"metrics"`
	Thresholds    ThresholdConfig     `yaml:"thresholds" mapstructure:"thresholds"`
	Registry      RegistryConfig      `yaml:"registry" mapstructure:"registry"`
	DomainStore   DomainStoreConfig   `yaml:"domain_store" mapstructure:"domain_store"`
	Notifications NotificationsConfig `yaml:"notifications" mapstructure:"notifications"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file,omitempty" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// EventLogConfig configures the buffered event log.
type EventLogConfig struct {
	BufferSize    int           `yaml:"buffer_size" mapstructure:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
}

// MetricsConfig configures the metrics monitor schedules and sinks.
type MetricsConfig struct {
	BufferSize         int           `yaml:"buffer_size" mapstructure:"buffer_size"`
	FlushInterval      time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
	HealthInterval     time.Duration `yaml:"health_interval" mapstructure:"health_interval"`
	DerivedInterval    time.Duration `yaml:"derived_interval" mapstructure:"derived_interval"`
	Sinks              []string      `yaml:"sinks" mapstructure:"sinks"`
	PerformanceHistory int           `yaml:"performance_history" mapstructure:"performance_history"`
}

// ThresholdConfig holds alerting thresholds.
type ThresholdConfig struct {
	ErrorRate      float64       `yaml:"error_rate" mapstructure:"error_rate"`
	ResponseTime   time.Duration `yaml:"response_time" mapstructure:"response_time"`
	CacheHitRate   float64       `yaml:"cache_hit_rate" mapstructure:"cache_hit_rate"`
	QueueLength    int           `yaml:"queue_length" mapstructure:"queue_length"`
	MemoryUsage    float64       `yaml:"memory_usage" mapstructure:"memory_usage"`
	BurstCount     int           `yaml:"burst_count" mapstructure:"burst_count"`
	BurstWindow    time.Duration `yaml:"burst_window" mapstructure:"burst_window"`
	AlertRetention time.Duration `yaml:"alert_retention" mapstructure:"alert_retention"`
}

// RegistryConfig bounds the session registry's memory and day files.
type RegistryConfig struct {
	MaxLogsInMemory          int  `yaml:"max_logs_in_memory" mapstructure:"max_logs_in_memory"`
	MaxLogsPerFile           int  `yaml:"max_logs_per_file" mapstructure:"max_logs_per_file"`
	MaxSessionsPerFile       int  `yaml:"max_sessions_per_file" mapstructure:"max_sessions_per_file"`
	MaxSessionLogs           int  `yaml:"max_session_logs" mapstructure:"max_session_logs"`
	FallbackToCurrentSession bool `yaml:"fallback_to_current_session" mapstructure:"fallback_to_current_session"`
}

// DomainStoreConfig selects the per-domain error store.
type DomainStoreConfig struct {
	Type string `yaml:"type" mapstructure:"type"` // file, sqlite, none
	Path string `yaml:"path" mapstructure:"path"`
}

// NotificationsConfig configures alert delivery.
type NotificationsConfig struct {
	Enabled     bool        `yaml:"enabled" mapstructure:"enabled"`
	Slack       SlackConfig `yaml:"slack" mapstructure:"slack"`
	MinSeverity string      `yaml:"min_severity" mapstructure:"min_severity"`
}

// SlackConfig holds Slack webhook settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}
