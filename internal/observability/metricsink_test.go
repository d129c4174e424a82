package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valter-silva-au/scrapewatch/internal/logging"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

func TestFileSink_WriteAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "metrics")
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("creating file sink: %v", err)
	}

	day := time.Date(2025, 1, 15, 23, 59, 0, 0, time.UTC)
	records := []models.MetricRecord{
		{Timestamp: day, Kind: models.RecordEvent, Category: "cache-hit", Value: 1},
		{Timestamp: day.Add(30 * time.Second), Kind: models.RecordTiming, Category: "timing", Operation: "fetch", Value: 120},
		{Timestamp: day.Add(2 * time.Minute), Kind: models.RecordEvent, Category: "cache-miss", Value: 1},
	}
	if err := sink.Write(records); err != nil {
		t.Fatalf("writing records: %v", err)
	}

	first, err := ReadMetricsFile(sink.Path(day), MetricsFilter{})
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 records on the first day, got %d", len(first))
	}
	if first[1].Operation != "fetch" || first[1].Value != 120 {
		t.Errorf("unexpected timing record: %+v", first[1])
	}

	next, err := ReadMetricsFile(sink.Path(day.Add(time.Hour)), MetricsFilter{})
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	if len(next) != 1 || next[0].Category != "cache-miss" {
		t.Errorf("expected record partitioned into the next day, got %+v", next)
	}
}

func TestFileSink_AppendsAcrossWrites(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("creating file sink: %v", err)
	}
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := models.MetricRecord{Timestamp: now, Kind: models.RecordEvent, Category: "queue-push", Value: 1}
		if err := sink.Write([]models.MetricRecord{rec}); err != nil {
			t.Fatalf("writing record %d: %v", i, err)
		}
	}

	got, err := ReadMetricsFile(sink.Path(now), MetricsFilter{Category: "queue-push"})
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 appended records, got %d", len(got))
	}
}

func TestReadMetricsFile_FilterAndMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics-2025-01-15.jsonl")
	content := `{"timestamp":"2025-01-15T10:00:00Z","kind":"event","category":"cache-hit","value":1}
not json
{"timestamp":"2025-01-15T11:00:00Z","kind":"timing","category":"timing","operation":"x","value":5}

{"timestamp":"2025-01-15T12:00:00Z","kind":"event","category":"cache-hit","value":1}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	all, err := ReadMetricsFile(path, MetricsFilter{})
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected malformed line skipped, got %d records", len(all))
	}

	since := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	filtered, err := ReadMetricsFile(path, MetricsFilter{Since: &since, Kind: models.RecordEvent})
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	if len(filtered) != 1 || !filtered[0].Timestamp.Equal(time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected filtered records: %+v", filtered)
	}
}

func TestReadMetricsFile_Missing(t *testing.T) {
	got, err := ReadMetricsFile(filepath.Join(t.TempDir(), "nope.jsonl"), MetricsFilter{})
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil records, got %v", got)
	}
}

func TestSummarize(t *testing.T) {
	start := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	d := Summarize([]models.MetricRecord{
		{Timestamp: start.Add(time.Minute), Kind: models.RecordEvent, Category: "cache-hit", Value: 1},
		{Timestamp: start, Kind: models.RecordTiming, Category: "timing", Operation: "a", Value: 100},
		{Timestamp: start.Add(3 * time.Minute), Kind: models.RecordTiming, Category: "timing", Operation: "b", Value: 50},
	})

	if d.Records != 3 {
		t.Errorf("expected 3 records, got %d", d.Records)
	}
	if d.Categories["timing"] != 2 || d.Categories["cache-hit"] != 1 {
		t.Errorf("unexpected category counts: %v", d.Categories)
	}
	if d.DurationMS != 150 {
		t.Errorf("expected summed duration 150, got %v", d.DurationMS)
	}
	if d.Timespan() != 3*time.Minute {
		t.Errorf("expected timespan 3m, got %v", d.Timespan())
	}
}

func TestLogSink_Write(t *testing.T) {
	sink := NewLogSink(logging.Discard())
	if sink.Name() != "log" {
		t.Errorf("expected name log, got %s", sink.Name())
	}
	if err := sink.Write(nil); err != nil {
		t.Errorf("expected no error for empty batch, got %v", err)
	}
	err := sink.Write([]models.MetricRecord{{Timestamp: time.Now(), Kind: models.RecordEvent, Category: "x", Value: 1}})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
