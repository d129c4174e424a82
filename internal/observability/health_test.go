package observability

import (
	"testing"

	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

func TestAggregateHealth(t *testing.T) {
	h := func(statuses ...models.HealthStatus) map[string]models.ComponentHealth {
		out := make(map[string]models.ComponentHealth)
		for i, s := range statuses {
			out[string(rune('a'+i))] = models.ComponentHealth{Status: s}
		}
		return out
	}
	ok, deg, bad := models.HealthHealthy, models.HealthDegraded, models.HealthUnhealthy

	tests := []struct {
		name       string
		components map[string]models.ComponentHealth
		want       models.HealthStatus
	}{
		{"none", h(), ok},
		{"all healthy", h(ok, ok, ok), ok},
		{"two of three", h(ok, ok, deg), deg},
		{"one of two", h(ok, bad), bad},
		{"five of six", h(ok, ok, ok, ok, ok, bad), ok},
		{"four of five", h(ok, ok, ok, ok, bad), deg},
		{"none healthy", h(deg, bad), bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregateHealth(tt.components); got != tt.want {
				t.Errorf("AggregateHealth = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPerformHealthCheck_Healthy(t *testing.T) {
	m := newTestMonitor(t, models.MetricsConfig{})

	health := m.PerformHealthCheck()

	if health.Status != models.HealthHealthy {
		t.Errorf("expected healthy system, got %s", health.Status)
	}
	for _, c := range []string{ComponentMemory, ComponentProcess, ComponentMetricsBuffer} {
		if health.Components[c].Status != models.HealthHealthy {
			t.Errorf("expected %s healthy, got %s", c, health.Components[c].Status)
		}
	}
	if _, ok := health.Components[ComponentProcess].Details["pid"]; !ok {
		t.Error("expected pid in process details")
	}
}

func TestPerformHealthCheck_MemoryPressure(t *testing.T) {
	m := newTestMonitor(t, models.MetricsConfig{})
	m.heap = [2]uint64{90, 100}

	health := m.PerformHealthCheck()

	if health.Components[ComponentMemory].Status != models.HealthUnhealthy {
		t.Errorf("expected memory unhealthy, got %s", health.Components[ComponentMemory].Status)
	}
	if health.Status != models.HealthDegraded {
		t.Errorf("expected degraded system with 2/3 healthy, got %s", health.Status)
	}
	if got := alertsOfType(m.Alerts(), models.AlertComponentUnhealthy); len(got) != 1 {
		t.Errorf("expected 1 component-unhealthy alert, got %d", len(got))
	}
}

func TestPerformHealthCheck_BufferNearlyFull(t *testing.T) {
	m := newTestMonitor(t, models.MetricsConfig{BufferSize: 10})
	for i := 0; i < 9; i++ {
		m.RecordEvent("scraper-success", nil)
	}

	health := m.PerformHealthCheck()

	if health.Components[ComponentMetricsBuffer].Status != models.HealthDegraded {
		t.Errorf("expected buffer degraded at 90%%, got %s", health.Components[ComponentMetricsBuffer].Status)
	}
}

func TestRecordSystemHealth(t *testing.T) {
	m := newTestMonitor(t, models.MetricsConfig{})

	m.RecordSystemHealth("redis", models.HealthHealthy, nil)
	if m.GetSystemHealth().Status != models.HealthHealthy {
		t.Fatal("expected healthy after one healthy component")
	}

	m.RecordSystemHealth("postgres", models.HealthUnhealthy, map[string]any{"error": "refused"})

	health := m.GetSystemHealth()
	if health.Status != models.HealthUnhealthy {
		t.Errorf("expected unhealthy with 1/2 healthy, got %s", health.Status)
	}
	alerts := alertsOfType(m.Alerts(), models.AlertComponentUnhealthy)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 component-unhealthy alert, got %d", len(alerts))
	}
	if alerts[0].Details["component"] != "postgres" {
		t.Errorf("expected component postgres, got %v", alerts[0].Details["component"])
	}
}
