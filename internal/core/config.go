// Package core contains the session registry, domain bucketing and the
// configuration manager for scrapewatch.
package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

// ConfigFileName is the base name of the YAML config file, without extension.
const ConfigFileName = ".scrapewatch"

// EnvPrefix prefixes environment overrides, e.g. SCRAPEWATCH_DATA_DIR or
// SCRAPEWATCH_METRICS_BUFFER_SIZE.
const EnvPrefix = "SCRAPEWATCH"

var validSinks = map[string]bool{"file": true, "log": true, "sqlite": true}

var validStoreTypes = map[string]bool{"file": true, "sqlite": true, "none": true}

// ConfigurationManager loads and validates scrapewatch configuration.
type ConfigurationManager interface {
	Load() (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading .scrapewatch.yaml plus environment overrides.
type viperConfigManager struct {
	// basePath is the directory holding .scrapewatch.yaml and .env.
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// configuration files relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a Config populated with the built-in defaults.
func DefaultConfig() *models.Config {
	return &models.Config{
		DataDir: filepath.Join(xdg.DataHome, "scrapewatch"),
		Logging: models.LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		EventLog: models.EventLogConfig{
			BufferSize:    100,
			FlushInterval: time.Second,
		},
		Metrics: models.MetricsConfig{
			BufferSize:         1000,
			FlushInterval:      60 * time.Second,
			HealthInterval:     30 * time.Second,
			DerivedInterval:    15 * time.Second,
			Sinks:              []string{"file", "log"},
			PerformanceHistory: 100,
		},
		Thresholds: models.ThresholdConfig{
			ErrorRate:      0.1,
			ResponseTime:   30 * time.Second,
			CacheHitRate:   0.5,
			QueueLength:    100,
			MemoryUsage:    0.8,
			BurstCount:     10,
			BurstWindow:    5 * time.Minute,
			AlertRetention: 24 * time.Hour,
		},
		Registry: models.RegistryConfig{
			MaxLogsInMemory:    1000,
			MaxLogsPerFile:     10000,
			MaxSessionsPerFile: 1000,
			MaxSessionLogs:     500,
		},
		DomainStore: models.DomainStoreConfig{
			Type: "file",
		},
		Notifications: models.NotificationsConfig{
			MinSeverity: string(models.SeverityHigh),
		},
	}
}

func setDefaults(v *viper.Viper, cfg *models.Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)

	v.SetDefault("eventlog.buffer_size", cfg.EventLog.BufferSize)
	v.SetDefault("eventlog.flush_interval", cfg.EventLog.FlushInterval)

	v.SetDefault("metrics.buffer_size", cfg.Metrics.BufferSize)
	v.SetDefault("metrics.flush_interval", cfg.Metrics.FlushInterval)
	v.SetDefault("metrics.health_interval", cfg.Metrics.HealthInterval)
	v.SetDefault("metrics.derived_interval", cfg.Metrics.DerivedInterval)
	v.SetDefault("metrics.sinks", cfg.Metrics.Sinks)
	v.SetDefault("metrics.performance_history", cfg.Metrics.PerformanceHistory)

	v.SetDefault("thresholds.error_rate", cfg.Thresholds.ErrorRate)
	v.SetDefault("thresholds.response_time", cfg.Thresholds.ResponseTime)
	v.SetDefault("thresholds.cache_hit_rate", cfg.Thresholds.CacheHitRate)
	v.SetDefault("thresholds.queue_length", cfg.Thresholds.QueueLength)
	v.SetDefault("thresholds.memory_usage", cfg.Thresholds.MemoryUsage)
	v.SetDefault("thresholds.burst_count", cfg.Thresholds.BurstCount)
	v.SetDefault("thresholds.burst_window", cfg.Thresholds.BurstWindow)
	v.SetDefault("thresholds.alert_retention", cfg.Thresholds.AlertRetention)

	v.SetDefault("registry.max_logs_in_memory", cfg.Registry.MaxLogsInMemory)
	v.SetDefault("registry.max_logs_per_file", cfg.Registry.MaxLogsPerFile)
	v.SetDefault("registry.max_sessions_per_file", cfg.Registry.MaxSessionsPerFile)
	v.SetDefault("registry.max_session_logs", cfg.Registry.MaxSessionLogs)
	v.SetDefault("registry.fallback_to_current_session", cfg.Registry.FallbackToCurrentSession)

	v.SetDefault("domain_store.type", cfg.DomainStore.Type)
	v.SetDefault("domain_store.path", cfg.DomainStore.Path)

	v.SetDefault("notifications.enabled", cfg.Notifications.Enabled)
	v.SetDefault("notifications.slack.webhook_url", cfg.Notifications.Slack.WebhookURL)
	v.SetDefault("notifications.min_severity", cfg.Notifications.MinSeverity)
}

// Load reads .env and .scrapewatch.yaml from the base path and applies
// SCRAPEWATCH_* environment overrides. A missing config file yields the
// defaults.
func (cm *viperConfigManager) Load() (*models.Config, error) {
	envPath := filepath.Join(cm.basePath, ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envPath, err)
	}

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s.yaml: %w", ConfigFileName, err)
		}
	}

	cfg := &models.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	// Env overrides arrive as one comma-separated string.
	if len(cfg.Metrics.Sinks) == 1 && strings.Contains(cfg.Metrics.Sinks[0], ",") {
		cfg.Metrics.Sinks = splitList(cfg.Metrics.Sinks[0])
	}
	if cfg.DomainStore.Path == "" {
		cfg.DomainStore.Path = defaultDomainStorePath(cfg)
	}
	return cfg, nil
}

func defaultDomainStorePath(cfg *models.Config) string {
	if cfg.DomainStore.Type == "sqlite" {
		return filepath.Join(cfg.DataDir, "scrapewatch.db")
	}
	return filepath.Join(cfg.DataDir, "domains.yaml")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ValidateConfig checks the configuration for invalid values and returns
// one error listing every problem.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string
	if cfg.DataDir == "" {
		errs = append(errs, "data_dir must not be empty")
	}
	if cfg.EventLog.BufferSize <= 0 {
		errs = append(errs, "eventlog.buffer_size must be positive")
	}
	if cfg.EventLog.FlushInterval <= 0 {
		errs = append(errs, "eventlog.flush_interval must be positive")
	}
	if cfg.Metrics.BufferSize <= 0 {
		errs = append(errs, "metrics.buffer_size must be positive")
	}
	for _, s := range cfg.Metrics.Sinks {
		if !validSinks[s] {
			errs = append(errs, fmt.Sprintf("metrics.sinks: unknown sink %q (valid: file, log, sqlite)", s))
		}
	}
	if cfg.Thresholds.ErrorRate < 0 || cfg.Thresholds.ErrorRate > 1 {
		errs = append(errs, "thresholds.error_rate must be between 0 and 1")
	}
	if cfg.Thresholds.CacheHitRate < 0 || cfg.Thresholds.CacheHitRate > 1 {
		errs = append(errs, "thresholds.cache_hit_rate must be between 0 and 1")
	}
	if cfg.Thresholds.MemoryUsage <= 0 || cfg.Thresholds.MemoryUsage > 1 {
		errs = append(errs, "thresholds.memory_usage must be in (0, 1]")
	}
	if cfg.Registry.MaxLogsInMemory <= 0 {
		errs = append(errs, "registry.max_logs_in_memory must be positive")
	}
	if !validStoreTypes[cfg.DomainStore.Type] {
		errs = append(errs, fmt.Sprintf("domain_store.type: unknown type %q (valid: file, sqlite, none)", cfg.DomainStore.Type))
	}
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL == "" {
		errs = append(errs, "notifications.slack.webhook_url is required when notifications are enabled")
	}
	if s := models.AlertSeverity(cfg.Notifications.MinSeverity); s != "" && s.Rank() == 0 {
		errs = append(errs, fmt.Sprintf("notifications.min_severity: unknown severity %q", s))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
