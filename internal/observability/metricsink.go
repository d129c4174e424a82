package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

// MetricsSink receives drained metric records.
type MetricsSink interface {
	Name() string
	Write(records []models.MetricRecord) error
}

// MetricsFilter selects records when reading a metrics file.
type MetricsFilter struct {
	Since    *time.Time
	Until    *time.Time
	Category string
	Kind     models.RecordKind
}

// FileSink appends records as JSON lines to one file per UTC day under dir.
type FileSink struct {
	dir string
	mu  sync.Mutex
}

// NewFileSink creates a FileSink, creating dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating metrics directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Name implements MetricsSink.
func (s *FileSink) Name() string { return "file" }

// Path returns the metrics file for the UTC day of t.
func (s *FileSink) Path(t time.Time) string {
	return filepath.Join(s.dir, "metrics-"+t.UTC().Format("2006-01-02")+".jsonl")
}

// Write appends each record to the file of the day it was recorded on.
func (s *FileSink) Write(records []models.MetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byPath := make(map[string][]byte)
	var order []string
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshalling metric record: %w", err)
		}
		p := s.Path(r.Timestamp)
		if _, ok := byPath[p]; !ok {
			order = append(order, p)
		}
		byPath[p] = append(append(byPath[p], data...), '\n')
	}

	for _, p := range order {
		f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening metrics file: %w", err)
		}
		if _, err := f.Write(byPath[p]); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing metrics file: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing metrics file: %w", err)
		}
	}
	return nil
}

// ReadMetricsFile decodes a metrics JSONL file, skipping malformed lines.
// A missing file yields no records.
func ReadMetricsFile(path string, filter MetricsFilter) ([]models.MetricRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening metrics file for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []models.MetricRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var r models.MetricRecord
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		if matchesMetricsFilter(r, filter) {
			records = append(records, r)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning metrics file: %w", err)
	}
	return records, nil
}

func matchesMetricsFilter(r models.MetricRecord, filter MetricsFilter) bool {
	if filter.Since != nil && r.Timestamp.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && r.Timestamp.After(*filter.Until) {
		return false
	}
	if filter.Category != "" && r.Category != filter.Category {
		return false
	}
	if filter.Kind != "" && r.Kind != filter.Kind {
		return false
	}
	return true
}

// Digest summarises a batch of records.
type Digest struct {
	Records    int              `json:"records"`
	Categories map[string]int   `json:"categories"`
	DurationMS float64          `json:"duration_ms"`
	First      time.Time        `json:"first"`
	Last       time.Time        `json:"last"`
	Operations map[string]int64 `json:"operations,omitempty"`
}

// Timespan is the interval covered by the digest.
func (d Digest) Timespan() time.Duration {
	return d.Last.Sub(d.First)
}

// Summarize builds a Digest: per-category counts, summed timing duration and
// the covered timespan.
func Summarize(records []models.MetricRecord) Digest {
	d := Digest{
		Categories: make(map[string]int),
		Operations: make(map[string]int64),
	}
	for i, r := range records {
		d.Records++
		d.Categories[r.Category]++
		if r.Kind == models.RecordTiming {
			d.DurationMS += r.Value
			d.Operations[r.Operation]++
		}
		if i == 0 || r.Timestamp.Before(d.First) {
			d.First = r.Timestamp
		}
		if r.Timestamp.After(d.Last) {
			d.Last = r.Timestamp
		}
	}
	return d
}

// LogSink writes a digest of each batch to the process logger instead of the
// raw records.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Name implements MetricsSink.
func (s *LogSink) Name() string { return "log" }

// Write implements MetricsSink.
func (s *LogSink) Write(records []models.MetricRecord) error {
	if len(records) == 0 {
		return nil
	}
	d := Summarize(records)

	s.logger.Info().
		Int("records", d.Records).
		Any("categories", d.Categories).
		Float64("duration_ms", d.DurationMS).
		Dur("timespan", d.Timespan()).
		Msg("metrics flushed")
	return nil
}
