package cli

import (
	"context"
	"time"

	"github.com/phuslu/log"

	"github.com/valter-silva-au/scrapewatch/internal/core"
	"github.com/valter-silva-au/scrapewatch/internal/observability"
	"github.com/valter-silva-au/scrapewatch/internal/storage"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath    string
	Config      *models.Config
	Logger      *log.Logger
	EventLog    *observability.EventLog
	Registry    *core.SessionRegistry
	Monitor     *observability.MetricsMonitor
	DomainStore storage.DomainStore
	// MetricsStore is set when the sqlite metrics sink is active.
	MetricsStore MetricsReader

	// StartPipeline starts the background flush and health jobs. Long
	// running commands call it; one-shot commands rely on App.Close to
	// flush.
	StartPipeline func(ctx context.Context) error
)

// MetricsReader reads back metric records persisted by a sink.
type MetricsReader interface {
	MetricsSince(ctx context.Context, since time.Time) ([]models.MetricRecord, error)
}
