package observability

import (
	"fmt"
	"sort"

	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

var alertSeverities = map[string]models.AlertSeverity{
	models.AlertHighErrorRate:      models.SeverityCritical,
	models.AlertComponentUnhealthy: models.SeverityHigh,
	models.AlertSlowOperation:      models.SeverityMedium,
	models.AlertHighQueueLength:    models.SeverityMedium,
	models.AlertLowCacheHitRate:    models.SeverityLow,
}

// SeverityFor returns the severity of an alert type. Unknown types are medium.
func SeverityFor(alertType string) models.AlertSeverity {
	if s, ok := alertSeverities[alertType]; ok {
		return s
	}
	return models.SeverityMedium
}

// TriggerAlert stores a new alert, logs it at error level and, when its
// severity meets the configured minimum, hands it to the notifier. Repeated
// types accumulate.
func (m *MetricsMonitor) TriggerAlert(alertType string, details map[string]any) models.Alert {
	now := m.now()

	m.mu.Lock()
	m.alertSeq++
	a := models.Alert{
		ID:        fmt.Sprintf("%s-%d-%d", alertType, now.UnixMilli(), m.alertSeq),
		Type:      alertType,
		Timestamp: now,
		Details:   details,
		Severity:  SeverityFor(alertType),
	}
	m.alerts = append(m.alerts, a)
	m.mu.Unlock()

	if m.eventLog != nil {
		data := make(map[string]any, len(details)+2)
		for k, v := range details {
			data[k] = v
		}
		data["alertId"] = a.ID
		data["severity"] = string(a.Severity)
		m.eventLog.Log("error", fmt.Sprintf("[ALERT] %s (%s)", alertType, a.Severity), data, WithAsync(false))
	}

	if m.notifier != nil && a.Severity.Rank() >= m.minSeverity.Rank() {
		m.notifyWG.Add(1)
		go func() {
			defer m.notifyWG.Done()
			if err := m.notifier.Notify([]models.Alert{a}); err != nil {
				m.logger.Warn().Err(err).Str("alert", a.ID).Msg("sending alert notification")
			}
		}()
	}
	return a
}

// AcknowledgeAlert marks an alert as acknowledged. It reports whether the id
// was found.
func (m *MetricsMonitor) AcknowledgeAlert(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID != id {
			continue
		}
		if !m.alerts[i].Acknowledged {
			now := m.now()
			m.alerts[i].Acknowledged = true
			m.alerts[i].AcknowledgedAt = &now
		}
		return true
	}
	return false
}

// ClearOldAlerts removes alerts older than the retention period and returns
// how many were removed.
func (m *MetricsMonitor) ClearOldAlerts() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.thresholds.AlertRetention)
	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	removed := len(m.alerts) - len(kept)
	m.alerts = kept
	return removed
}

// Alerts returns every stored alert, oldest first.
func (m *MetricsMonitor) Alerts() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// GetAlertsForDashboard splits alerts into active and acknowledged, newest
// first, with active counts per severity.
func (m *MetricsMonitor) GetAlertsForDashboard() models.AlertDashboard {
	alerts := m.Alerts()
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})

	d := models.AlertDashboard{
		Active:       []models.Alert{},
		Acknowledged: []models.Alert{},
		BySeverity:   map[string]int{},
		Total:        len(alerts),
	}
	for _, a := range alerts {
		if a.Acknowledged {
			d.Acknowledged = append(d.Acknowledged, a)
			continue
		}
		d.Active = append(d.Active, a)
		d.BySeverity[string(a.Severity)]++
	}
	return d
}
