// Package internal provides the App struct that wires all components of the
// scrapewatch pipeline together and initializes the CLI layer.
package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/scrapewatch/internal/cli"
	"github.com/valter-silva-au/scrapewatch/internal/core"
	"github.com/valter-silva-au/scrapewatch/internal/logging"
	"github.com/valter-silva-au/scrapewatch/internal/observability"
	"github.com/valter-silva-au/scrapewatch/internal/storage"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

// App holds all service dependencies for the scrapewatch pipeline.
type App struct {
	BasePath string
	Config   *models.Config

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Process logger
	Logger *logging.Logger

	// Storage layer
	DayFiles    *storage.DayFileStore
	DomainStore storage.DomainStore
	SQLite      *storage.SQLiteStore

	// Pipeline
	EventLog *observability.EventLog
	Registry *core.SessionRegistry
	Monitor  *observability.MetricsMonitor
	Notifier observability.Notifier
}

// NewApp creates and wires all components. basePath is the directory holding
// .scrapewatch.yaml and .env. Storage failures disable the affected feature
// instead of aborting.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	// --- Logger ---
	app.Logger = logging.New(cfg.Logging)
	logger := app.Logger.Logger

	// --- Storage layer ---
	app.DayFiles, err = storage.NewDayFileStore(
		filepath.Join(cfg.DataDir, "logs"),
		cfg.Registry.MaxLogsPerFile,
		cfg.Registry.MaxSessionsPerFile,
	)
	if err != nil {
		// Non-fatal: the registry keeps working in memory.
		logger.Warn().Err(err).Msg("day files disabled")
		app.DayFiles = nil
	}

	switch cfg.DomainStore.Type {
	case "sqlite":
		app.SQLite, err = storage.OpenSQLite(cfg.DomainStore.Path)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.DomainStore.Path).Msg("domain store disabled")
		} else {
			app.DomainStore = app.SQLite
		}
	case "file":
		app.DomainStore = storage.NewFileDomainStore(cfg.DomainStore.Path)
	}

	// --- Event log ---
	app.EventLog = observability.NewEventLog(observability.EventLogOptions{
		BufferSize:    cfg.EventLog.BufferSize,
		FlushInterval: cfg.EventLog.FlushInterval,
		Sink:          observability.LoggerSink(logger),
		Logger:        logger,
	})

	// --- Session registry ---
	regOpts := core.RegistryOptions{
		Config: cfg.Registry,
		Logger: logger,
	}
	if app.DayFiles != nil {
		regOpts.Files = app.DayFiles
	}
	if app.DomainStore != nil {
		regOpts.DomainErrors = app.DomainStore
	}
	app.Registry = core.NewSessionRegistry(regOpts)
	app.EventLog.Subscribe(&registryObserver{reg: app.Registry})

	// --- Metrics monitor ---
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.Slack.WebhookURL)
	}
	app.Monitor = observability.NewMetricsMonitor(observability.MonitorOptions{
		Config:      cfg.Metrics,
		Thresholds:  cfg.Thresholds,
		EventLog:    app.EventLog,
		Sinks:       app.buildSinks(),
		Notifier:    app.Notifier,
		MinSeverity: models.AlertSeverity(cfg.Notifications.MinSeverity),
		Logger:      logger,
	})

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = cfg
	cli.Logger = logger
	cli.EventLog = app.EventLog
	cli.Registry = app.Registry
	cli.Monitor = app.Monitor
	cli.DomainStore = app.DomainStore
	if app.SQLite != nil {
		cli.MetricsStore = app.SQLite
	}
	cli.StartPipeline = app.Start

	return app, nil
}

// buildSinks creates the configured metrics sinks. Sinks that fail to open
// are skipped.
func (a *App) buildSinks() []observability.MetricsSink {
	logger := a.Logger.Logger
	var sinks []observability.MetricsSink
	for _, name := range a.Config.Metrics.Sinks {
		switch name {
		case "file":
			fs, err := observability.NewFileSink(filepath.Join(a.Config.DataDir, "metrics"))
			if err != nil {
				logger.Warn().Err(err).Msg("file metrics sink disabled")
				continue
			}
			sinks = append(sinks, fs)
		case "log":
			sinks = append(sinks, observability.NewLogSink(logger))
		case "sqlite":
			if a.SQLite == nil {
				db, err := storage.OpenSQLite(filepath.Join(a.Config.DataDir, "scrapewatch.db"))
				if err != nil {
					logger.Warn().Err(err).Msg("sqlite metrics sink disabled")
					continue
				}
				a.SQLite = db
			}
			sinks = append(sinks, a.SQLite)
		}
	}
	return sinks
}

// Start begins the event log flush ticker and the monitor's scheduled jobs.
// Both stop when ctx is cancelled or Close is called.
func (a *App) Start(ctx context.Context) error {
	a.EventLog.Start(ctx)
	if err := a.Monitor.Start(ctx); err != nil {
		return fmt.Errorf("starting metrics monitor: %w", err)
	}
	return nil
}

// Close shuts components down in dependency order: the monitor flushes its
// buffer through the event log, the event log flushes into the registry, and
// the registry drains its file writer before the stores close.
func (a *App) Close() error {
	if a.Monitor != nil {
		a.Monitor.Shutdown()
	}
	if a.EventLog != nil {
		a.EventLog.Shutdown()
	}
	if a.Registry != nil {
		a.Registry.Close()
	}

	var firstErr error
	if a.DomainStore != nil && a.DomainStore != storage.DomainStore(a.SQLite) {
		if err := a.DomainStore.Close(); err != nil {
			firstErr = fmt.Errorf("closing domain store: %w", err)
		}
	}
	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing sqlite: %w", err)
		}
	}
	if a.Logger != nil {
		if err := a.Logger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing logger: %w", err)
		}
	}
	return firstErr
}

// ResolveBasePath determines the directory holding .scrapewatch.yaml. It
// checks the SCRAPEWATCH_HOME env var, then walks up from the current
// directory, then falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("SCRAPEWATCH_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName+".yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}

// --- Adapters ---

// registryObserver adapts core.SessionRegistry to observability.Observer so
// every dispatched event is captured as a log line.
type registryObserver struct {
	reg *core.SessionRegistry
}

func (o *registryObserver) Observe(d observability.Dispatch) {
	o.reg.CaptureConsoleLog(captureFromDispatch(d))
}

func captureFromDispatch(d observability.Dispatch) core.CaptureInput {
	in := core.CaptureInput{
		Level:     levelForCategory(d.Category),
		Message:   d.Message,
		Source:    "eventlog:" + d.Category,
		Timestamp: d.Timestamp,
	}
	if v, ok := d.Meta["url"].(string); ok {
		in.URL = v
	}
	if v, ok := d.Meta["sessionId"].(string); ok {
		in.SessionID = v
	}
	if v, ok := d.Meta["stack"].(string); ok {
		in.Stack = v
	}
	if v, ok := d.Meta["outcome"].(string); ok {
		in.Outcome = models.Outcome(v)
	}
	return in
}

func levelForCategory(category string) models.LogLevel {
	switch category {
	case "error":
		return models.LevelError
	case "retry":
		return models.LevelWarn
	case "timing", "parallel", "batch", "polling", "buffer":
		return models.LevelDebug
	default:
		return models.LevelLog
	}
}
