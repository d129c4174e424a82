package observability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

// Derived metric names.
const (
	MetricErrorRate       = "errorRate"
	MetricCacheHitRate    = "cacheHitRate"
	MetricAvgResponseTime = "avgResponseTime"
)

const derivedWindow = time.Hour

// alertPurgeInterval is how often alerts past retention are dropped.
const alertPurgeInterval = time.Hour

// DefaultMetricsConfig returns the schedule and buffer defaults.
func DefaultMetricsConfig() models.MetricsConfig {
	return models.MetricsConfig{
		BufferSize:         1000,
		FlushInterval:      60 * time.Second,
		HealthInterval:     30 * time.Second,
		DerivedInterval:    15 * time.Second,
		Sinks:              []string{"file", "log"},
		PerformanceHistory: 100,
	}
}

// DefaultThresholds returns the alerting thresholds.
func DefaultThresholds() models.ThresholdConfig {
	return models.ThresholdConfig{
		ErrorRate:      0.1,
		ResponseTime:   30 * time.Second,
		CacheHitRate:   0.5,
		QueueLength:    100,
		MemoryUsage:    0.8,
		BurstCount:     10,
		BurstWindow:    5 * time.Minute,
		AlertRetention: 24 * time.Hour,
	}
}

// MonitorOptions configures a MetricsMonitor. Zero-valued config fields take
// the defaults above.
type MonitorOptions struct {
	Config      models.MetricsConfig
	Thresholds  models.ThresholdConfig
	EventLog    *EventLog
	Sinks       []MetricsSink
	Notifier    Notifier
	MinSeverity models.AlertSeverity
	Logger      *log.Logger
	Now         func() time.Time
	MemStats    func() (used, total uint64)
}

// MetricsMonitor keeps counters, a bounded record buffer, per-operation
// timing histories, derived metrics, alerts and component health.
type MetricsMonitor struct {
	mu       sync.Mutex
	counters map[string]int64
	metrics  map[string]models.Metric
	buffer   []models.MetricRecord
	perf     map[string][]models.PerformanceSample
	bursts   map[string][]time.Time
	alerts   []models.Alert
	alertSeq int64
	health   map[string]models.ComponentHealth
	system   models.SystemHealth

	// flushMu serialises sink writes. Lock order: mu, then flushMu.
	flushMu sync.Mutex
	sinks   []MetricsSink

	cfg         models.MetricsConfig
	thresholds  models.ThresholdConfig
	eventLog    *EventLog
	notifier    Notifier
	minSeverity models.AlertSeverity
	notifyWG    sync.WaitGroup
	logger      *log.Logger
	now         func() time.Time
	memStats    func() (uint64, uint64)
	startTime   time.Time

	cron *cron.Cron
}

// NewMetricsMonitor creates a monitor. Call Start to schedule the recurring
// flush, health check and derived-metric jobs.
func NewMetricsMonitor(opts MonitorOptions) *MetricsMonitor {
	m := &MetricsMonitor{
		cfg:         withMetricsDefaults(opts.Config),
		thresholds:  withThresholdDefaults(opts.Thresholds),
		eventLog:    opts.EventLog,
		sinks:       opts.Sinks,
		notifier:    opts.Notifier,
		minSeverity: opts.MinSeverity,
		logger:      opts.Logger,
		now:         opts.Now,
		memStats:    opts.MemStats,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.memStats == nil {
		m.memStats = runtimeMemStats
	}
	if m.minSeverity == "" {
		m.minSeverity = models.SeverityHigh
	}
	if m.logger == nil {
		m.logger = &log.DefaultLogger
	}
	m.startTime = m.now()
	m.resetLocked()
	return m
}

func withMetricsDefaults(c models.MetricsConfig) models.MetricsConfig {
	d := DefaultMetricsConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = d.HealthInterval
	}
	if c.DerivedInterval <= 0 {
		c.DerivedInterval = d.DerivedInterval
	}
	if c.PerformanceHistory <= 0 {
		c.PerformanceHistory = d.PerformanceHistory
	}
	return c
}

func withThresholdDefaults(t models.ThresholdConfig) models.ThresholdConfig {
	d := DefaultThresholds()
	if t.ErrorRate <= 0 {
		t.ErrorRate = d.ErrorRate
	}
	if t.ResponseTime <= 0 {
		t.ResponseTime = d.ResponseTime
	}
	if t.CacheHitRate <= 0 {
		t.CacheHitRate = d.CacheHitRate
	}
	if t.QueueLength <= 0 {
		t.QueueLength = d.QueueLength
	}
	if t.MemoryUsage <= 0 {
		t.MemoryUsage = d.MemoryUsage
	}
	if t.BurstCount <= 0 {
		t.BurstCount = d.BurstCount
	}
	if t.BurstWindow <= 0 {
		t.BurstWindow = d.BurstWindow
	}
	if t.AlertRetention <= 0 {
		t.AlertRetention = d.AlertRetention
	}
	return t
}

func (m *MetricsMonitor) resetLocked() {
	m.counters = make(map[string]int64)
	m.metrics = make(map[string]models.Metric)
	m.buffer = nil
	m.perf = make(map[string][]models.PerformanceSample)
	m.bursts = make(map[string][]time.Time)
	m.alerts = nil
	m.health = make(map[string]models.ComponentHealth)
	m.system = models.SystemHealth{
		Status:     models.HealthHealthy,
		Components: map[string]models.ComponentHealth{},
		LastCheck:  m.now(),
	}
}

// Start schedules the recurring jobs. The scheduler stops when ctx is done or
// on Shutdown.
func (m *MetricsMonitor) Start(ctx context.Context) error {
	c := cron.New()
	jobs := []struct {
		every time.Duration
		fn    func()
	}{
		{m.cfg.FlushInterval, func() { m.FlushMetricsBuffer() }},
		{m.cfg.HealthInterval, func() { m.PerformHealthCheck() }},
		{m.cfg.DerivedInterval, func() { m.CalculateDerivedMetrics() }},
		{alertPurgeInterval, func() { m.ClearOldAlerts() }},
	}
	for _, j := range jobs {
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", j.every), j.fn); err != nil {
			return fmt.Errorf("scheduling metrics job: %w", err)
		}
	}

	m.mu.Lock()
	if m.cron != nil {
		m.mu.Unlock()
		return nil
	}
	m.cron = c
	m.mu.Unlock()

	c.Start()
	m.logger.Debug().
		Dur("flush_interval", m.cfg.FlushInterval).
		Dur("health_interval", m.cfg.HealthInterval).
		Dur("derived_interval", m.cfg.DerivedInterval).
		Msg("metrics monitor started")

	go func() {
		<-ctx.Done()
		m.stopScheduler()
	}()
	return nil
}

func (m *MetricsMonitor) stopScheduler() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Shutdown stops the scheduler, flushes the buffer once, waits for pending
// notifications and releases in-memory state.
func (m *MetricsMonitor) Shutdown() {
	m.stopScheduler()
	m.FlushMetricsBuffer()
	m.notifyWG.Wait()

	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
}

// RecordEvent counts an event, buffers it and checks for an error burst.
func (m *MetricsMonitor) RecordEvent(category string, details map[string]any) {
	now := m.now()

	m.mu.Lock()
	m.counters[category]++
	batch := m.appendLocked(models.MetricRecord{
		Timestamp: now,
		Kind:      models.RecordEvent,
		Category:  category,
		Value:     1,
		Details:   details,
	})
	prior := m.checkBurstLocked(category, now)
	m.mu.Unlock()

	m.writeBatch(batch)

	if prior >= m.thresholds.BurstCount {
		m.TriggerAlert(models.AlertErrorBurst, map[string]any{
			"category":  category,
			"count":     prior + 1,
			"window_ms": m.thresholds.BurstWindow.Milliseconds(),
		})
	}

	if m.eventLog != nil {
		m.eventLog.Log("timing", "[METRICS] "+category, details, WithAsync(true))
	}
}

// RecordTiming buffers a duration sample and raises slow-operation when it
// exceeds the response-time threshold.
func (m *MetricsMonitor) RecordTiming(operation string, d time.Duration, details map[string]any) {
	now := m.now()
	ms := d.Milliseconds()

	m.mu.Lock()
	batch := m.appendLocked(models.MetricRecord{
		Timestamp: now,
		Kind:      models.RecordTiming,
		Category:  "timing",
		Operation: operation,
		Value:     float64(ms),
		Details:   details,
	})
	history := append(m.perf[operation], models.PerformanceSample{Duration: d, Timestamp: now})
	if over := len(history) - m.cfg.PerformanceHistory; over > 0 {
		history = history[over:]
	}
	m.perf[operation] = history
	m.mu.Unlock()

	m.writeBatch(batch)

	if d > m.thresholds.ResponseTime {
		m.TriggerAlert(models.AlertSlowOperation, map[string]any{
			"operation": operation,
			"duration":  ms,
			"threshold": m.thresholds.ResponseTime.Milliseconds(),
		})
	}
}

// RecordCacheOperation records a cache hit, miss or write as "cache-<op>".
func (m *MetricsMonitor) RecordCacheOperation(op, key string, d time.Duration) {
	category := "cache-" + op
	m.RecordEvent(category, map[string]any{"key": key, "duration": d.Milliseconds()})
	if d > 0 {
		m.RecordTiming(category, d, map[string]any{"key": key})
	}
}

// RecordScrapingOperation records the result of scraping one domain.
func (m *MetricsMonitor) RecordScrapingOperation(domain string, success bool, d time.Duration, jobsFound int, errMsg string) {
	category := "scraper-success"
	if !success {
		category = "scraper-failure"
	}
	details := map[string]any{
		"domain":    domain,
		"jobsFound": jobsFound,
		"duration":  d.Milliseconds(),
	}
	if errMsg != "" {
		details["error"] = errMsg
	}
	m.RecordEvent(category, details)
	m.RecordTiming("scrape:"+domain, d, map[string]any{"domain": domain, "success": success})
}

// RecordQueueOperation records a queue operation and alerts on a long queue.
func (m *MetricsMonitor) RecordQueueOperation(queue, op string, length int) {
	m.RecordEvent("queue-"+op, map[string]any{"queue": queue, "length": length})
	if length > m.thresholds.QueueLength {
		m.TriggerAlert(models.AlertHighQueueLength, map[string]any{
			"queue":     queue,
			"length":    length,
			"threshold": m.thresholds.QueueLength,
		})
	}
}

// RecordServiceError records a failure reported by a named service.
func (m *MetricsMonitor) RecordServiceError(service string, err error, details map[string]any) {
	d := make(map[string]any, len(details)+2)
	for k, v := range details {
		d[k] = v
	}
	d["service"] = service
	if err != nil {
		d["error"] = err.Error()
	}
	m.RecordEvent("service-error", d)
}

// CalculateDerivedMetrics recomputes errorRate, cacheHitRate and
// avgResponseTime over the buffered records of the trailing hour and returns
// the new values. errorRate divides error-like events by every record in the
// window, timings included.
func (m *MetricsMonitor) CalculateDerivedMetrics() map[string]models.Metric {
	now := m.now()
	cutoff := now.Add(-derivedWindow)

	m.mu.Lock()
	var window, errs, hits, misses, samples int
	var totalMS float64
	for _, r := range m.buffer {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		window++
		if r.Kind == models.RecordTiming {
			samples++
			totalMS += r.Value
			continue
		}
		if isErrorLike(r.Category) {
			errs++
		}
		switch r.Category {
		case "cache-hit":
			hits++
		case "cache-miss":
			misses++
		}
	}

	var errorRate, hitRate, avgMS float64
	if window > 0 {
		errorRate = float64(errs) / float64(window)
	}
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}
	if samples > 0 {
		avgMS = totalMS / float64(samples)
	}

	m.metrics[MetricErrorRate] = models.Metric{Value: errorRate, Timestamp: now}
	m.metrics[MetricCacheHitRate] = models.Metric{Value: hitRate, Timestamp: now}
	m.metrics[MetricAvgResponseTime] = models.Metric{Value: avgMS, Timestamp: now}
	out := make(map[string]models.Metric, len(m.metrics))
	for k, v := range m.metrics {
		out[k] = v
	}
	m.mu.Unlock()

	if errorRate > m.thresholds.ErrorRate {
		m.TriggerAlert(models.AlertHighErrorRate, map[string]any{
			"errorRate": errorRate,
			"threshold": m.thresholds.ErrorRate,
			"window":    window,
		})
	}
	if hits+misses > 0 && hitRate < m.thresholds.CacheHitRate {
		m.TriggerAlert(models.AlertLowCacheHitRate, map[string]any{
			"cacheHitRate": hitRate,
			"threshold":    m.thresholds.CacheHitRate,
			"lookups":      hits + misses,
		})
	}
	return out
}

func isErrorLike(category string) bool {
	c := strings.ToLower(category)
	return strings.Contains(c, "error") || strings.Contains(c, "failure")
}

// checkBurstLocked records an error-like event and returns how many earlier
// events of the same category fall inside the burst window.
func (m *MetricsMonitor) checkBurstLocked(category string, now time.Time) int {
	if !isErrorLike(category) {
		return 0
	}
	cutoff := now.Add(-m.thresholds.BurstWindow)
	window := m.bursts[category]
	kept := window[:0]
	for _, ts := range window {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	prior := len(kept)
	m.bursts[category] = append(kept, now)
	return prior
}

// appendLocked buffers a record. When the buffer reaches capacity the oldest
// records are taken out and returned for writing.
func (m *MetricsMonitor) appendLocked(r models.MetricRecord) []models.MetricRecord {
	m.buffer = append(m.buffer, r)
	if len(m.buffer) < m.cfg.BufferSize {
		return nil
	}
	return m.takeLocked()
}

func (m *MetricsMonitor) takeLocked() []models.MetricRecord {
	n := len(m.buffer)
	if n == 0 {
		return nil
	}
	if n > m.cfg.BufferSize {
		n = m.cfg.BufferSize
	}
	batch := make([]models.MetricRecord, n)
	copy(batch, m.buffer[:n])
	m.buffer = append(m.buffer[:0:0], m.buffer[n:]...)
	return batch
}

// FlushMetricsBuffer drains up to one buffer's worth of the oldest records to
// every sink and returns how many were drained.
func (m *MetricsMonitor) FlushMetricsBuffer() int {
	m.mu.Lock()
	batch := m.takeLocked()
	m.mu.Unlock()

	m.writeBatch(batch)
	return len(batch)
}

func (m *MetricsMonitor) writeBatch(batch []models.MetricRecord) {
	if len(batch) == 0 {
		return
	}
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	for _, s := range m.sinks {
		if err := s.Write(batch); err != nil {
			m.logger.Error().Err(err).Str("sink", s.Name()).Int("records", len(batch)).Msg("writing metrics")
		}
	}
}

// BufferLen returns the number of records waiting to be flushed.
func (m *MetricsMonitor) BufferLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffer)
}

// Counter returns the lifetime count for a category.
func (m *MetricsMonitor) Counter(category string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[category]
}

// GetMetricsSummary returns a snapshot for dashboards.
func (m *MetricsMonitor) GetMetricsSummary() models.MetricsSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := models.MetricsSummary{
		Counters:      make(map[string]int64, len(m.counters)),
		Metrics:       make(map[string]models.Metric, len(m.metrics)),
		Performance:   make(map[string]models.OperationStats, len(m.perf)),
		Health:        m.systemHealthLocked(),
		BufferSize:    len(m.buffer),
		BufferCap:     m.cfg.BufferSize,
		TotalAlerts:   len(m.alerts),
		UptimeSeconds: m.now().Sub(m.startTime).Seconds(),
	}
	for k, v := range m.counters {
		s.Counters[k] = v
	}
	for k, v := range m.metrics {
		s.Metrics[k] = v
	}
	for op, history := range m.perf {
		s.Performance[op] = operationStats(history)
	}
	for _, a := range m.alerts {
		if !a.Acknowledged {
			s.ActiveAlerts++
		}
	}
	return s
}

func operationStats(history []models.PerformanceSample) models.OperationStats {
	var st models.OperationStats
	if len(history) == 0 {
		return st
	}
	var total float64
	for i, s := range history {
		ms := float64(s.Duration.Milliseconds())
		total += ms
		if i == 0 || ms < st.MinMS {
			st.MinMS = ms
		}
		if ms > st.MaxMS {
			st.MaxMS = ms
		}
	}
	st.Count = len(history)
	st.AvgMS = total / float64(len(history))
	return st
}

// GetTopPerformers ranks domains by average jobs found, then by average
// duration, using scraper-success records still in the buffer. A limit of
// zero or less returns every domain.
func (m *MetricsMonitor) GetTopPerformers(limit int) []models.DomainPerformance {
	type agg struct {
		runs     int
		jobs     float64
		duration float64
	}

	m.mu.Lock()
	byDomain := make(map[string]*agg)
	for _, r := range m.buffer {
		if r.Kind != models.RecordEvent || r.Category != "scraper-success" {
			continue
		}
		domain, _ := r.Details["domain"].(string)
		if domain == "" {
			continue
		}
		a, ok := byDomain[domain]
		if !ok {
			a = &agg{}
			byDomain[domain] = a
		}
		a.runs++
		a.jobs += toFloat(r.Details["jobsFound"])
		a.duration += toFloat(r.Details["duration"])
	}
	m.mu.Unlock()

	out := make([]models.DomainPerformance, 0, len(byDomain))
	for domain, a := range byDomain {
		out = append(out, models.DomainPerformance{
			Domain:        domain,
			Runs:          a.runs,
			AvgJobsFound:  a.jobs / float64(a.runs),
			AvgDurationMS: a.duration / float64(a.runs),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgJobsFound != out[j].AvgJobsFound {
			return out[i].AvgJobsFound > out[j].AvgJobsFound
		}
		if out[i].AvgDurationMS != out[j].AvgDurationMS {
			return out[i].AvgDurationMS < out[j].AvgDurationMS
		}
		return out[i].Domain < out[j].Domain
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case float64:
		return n
	case float32:
		return float64(n)
	default:
		return 0
	}
}
