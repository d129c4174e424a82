package observability

import (
	"os"
	"runtime"

	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

// Component names reported by PerformHealthCheck.
const (
	ComponentMemory        = "memory"
	ComponentProcess       = "process"
	ComponentMetricsBuffer = "metrics-buffer"
)

const bufferDegradedRatio = 0.9

func runtimeMemStats() (uint64, uint64) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc, ms.HeapSys
}

// RecordSystemHealth stores a component status, recomputes the aggregate and
// alerts when the component is unhealthy.
func (m *MetricsMonitor) RecordSystemHealth(component string, status models.HealthStatus, details map[string]any) {
	m.mu.Lock()
	m.health[component] = models.ComponentHealth{
		Status:    status,
		LastCheck: m.now(),
		Details:   details,
	}
	m.recomputeHealthLocked()
	m.mu.Unlock()

	if status == models.HealthUnhealthy {
		m.TriggerAlert(models.AlertComponentUnhealthy, map[string]any{
			"component": component,
			"details":   details,
		})
	}
}

// PerformHealthCheck checks memory, the process and the metrics buffer and
// returns the recomputed system health.
func (m *MetricsMonitor) PerformHealthCheck() models.SystemHealth {
	used, total := m.memStats()
	var ratio float64
	if total > 0 {
		ratio = float64(used) / float64(total)
	}
	memStatus := models.HealthHealthy
	if ratio >= m.thresholds.MemoryUsage {
		memStatus = models.HealthUnhealthy
	}

	now := m.now()
	m.mu.Lock()
	occupancy := float64(len(m.buffer)) / float64(m.cfg.BufferSize)
	bufStatus := models.HealthHealthy
	if occupancy >= bufferDegradedRatio {
		bufStatus = models.HealthDegraded
	}

	m.health[ComponentMemory] = models.ComponentHealth{
		Status:    memStatus,
		LastCheck: now,
		Details: map[string]any{
			"heapUsed":  used,
			"heapTotal": total,
			"usage":     ratio,
		},
	}
	m.health[ComponentProcess] = models.ComponentHealth{
		Status:    models.HealthHealthy,
		LastCheck: now,
		Details: map[string]any{
			"uptimeSeconds": now.Sub(m.startTime).Seconds(),
			"pid":           os.Getpid(),
			"goroutines":    runtime.NumGoroutine(),
		},
	}
	m.health[ComponentMetricsBuffer] = models.ComponentHealth{
		Status:    bufStatus,
		LastCheck: now,
		Details: map[string]any{
			"size":      len(m.buffer),
			"capacity":  m.cfg.BufferSize,
			"occupancy": occupancy,
		},
	}
	m.recomputeHealthLocked()
	health := m.systemHealthLocked()
	m.mu.Unlock()

	if memStatus == models.HealthUnhealthy {
		m.TriggerAlert(models.AlertComponentUnhealthy, map[string]any{
			"component": ComponentMemory,
			"usage":     ratio,
			"threshold": m.thresholds.MemoryUsage,
		})
	}
	return health
}

func (m *MetricsMonitor) recomputeHealthLocked() {
	m.system.Status = AggregateHealth(m.health)
	m.system.LastCheck = m.now()
}

func (m *MetricsMonitor) systemHealthLocked() models.SystemHealth {
	components := make(map[string]models.ComponentHealth, len(m.health))
	for k, v := range m.health {
		components[k] = v
	}
	return models.SystemHealth{
		Status:     m.system.Status,
		Components: components,
		LastCheck:  m.system.LastCheck,
	}
}

// GetSystemHealth returns the last computed system health.
func (m *MetricsMonitor) GetSystemHealth() models.SystemHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.systemHealthLocked()
}

// AggregateHealth derives the system status from the share of healthy
// components: above 0.8 healthy, above 0.5 degraded, otherwise unhealthy.
// No components counts as healthy.
func AggregateHealth(components map[string]models.ComponentHealth) models.HealthStatus {
	if len(components) == 0 {
		return models.HealthHealthy
	}
	healthy := 0
	for _, c := range components {
		if c.Status == models.HealthHealthy {
			healthy++
		}
	}
	ratio := float64(healthy) / float64(len(components))
	switch {
	case ratio > 0.8:
		return models.HealthHealthy
	case ratio > 0.5:
		return models.HealthDegraded
	default:
		return models.HealthUnhealthy
	}
}
