package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/scrapewatch/internal/core"
	"github.com/valter-silva-au/scrapewatch/internal/storage"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

func sampleLogEntries() []models.LogEntry {
	return []models.LogEntry{
		{ID: "4", Level: models.LevelError, Message: "Scraping failed", URL: "https://b.example.com/x", SessionID: "s2"},
		{ID: "3", Level: models.LevelWarn, Message: "slow", URL: "https://a.example.com/y", SessionID: "s1"},
		{ID: "2", Level: models.LevelLog, Message: "Cache hit for https://a.example.com/z", SessionID: "s1"},
		{ID: "1", Level: models.LevelDebug, Message: "boot"},
	}
}

func ids(logs []models.LogEntry) string {
	parts := make([]string, len(logs))
	for i, e := range logs {
		parts[i] = e.ID
	}
	return strings.Join(parts, ",")
}

func TestFilterLogs(t *testing.T) {
	tests := []struct {
		name       string
		errorsOnly bool
		domain     string
		session    string
		want       string
	}{
		{"no filters", false, "", "", "4,3,2,1"},
		{"errors and warnings", true, "", "", "4,3"},
		{"domain from url field", false, "b.example.com", "", "4"},
		{"domain from message", false, "a.example.com", "", "3,2"},
		{"general bucket", false, core.DomainGeneral, "", "1"},
		{"session", false, "", "s1", "3,2"},
		{"combined", true, "a.example.com", "s1", "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(filterLogs(sampleLogEntries(), tt.errorsOnly, tt.domain, tt.session))
			if got != tt.want {
				t.Errorf("filterLogs() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolveDate(t *testing.T) {
	got, err := resolveDate("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != time.Now().UTC().Format("2006-01-02") {
		t.Errorf("empty date = %s, want today", got)
	}

	if got, err := resolveDate("2025-01-15"); err != nil || got != "2025-01-15" {
		t.Errorf("resolveDate(2025-01-15) = %s, %v", got, err)
	}
	if _, err := resolveDate("15/01/2025"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func withLogsFlags(t *testing.T) {
	t.Helper()
	d, e, dom, s, l, j := logsDate, logsErrors, logsDomain, logsSession, logsLimit, logsJSON
	t.Cleanup(func() {
		logsDate, logsErrors, logsDomain, logsSession, logsLimit, logsJSON = d, e, dom, s, l, j
		logsCmd.SetOut(nil)
	})
}

func TestLogsCmd_ReadsDayFile(t *testing.T) {
	f := setupPipeline(t)
	withLogsFlags(t)

	f.registry.CaptureConsoleLog(core.CaptureInput{Level: models.LevelLog, Message: "Successfully scraped https://a.example.com"})
	f.registry.CaptureConsoleLog(core.CaptureInput{Level: models.LevelError, Message: "Scraping failed", URL: "https://b.example.com"})
	f.registry.Sync()

	logsDate, logsErrors, logsDomain, logsSession, logsLimit = "", false, "", "", 0
	logsJSON = true
	var buf bytes.Buffer
	logsCmd.SetOut(&buf)
	if err := logsCmd.RunE(logsCmd, nil); err != nil {
		t.Fatalf("logs: %v", err)
	}

	var got []models.LogEntry
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if len(got) != 2 || got[0].Level != models.LevelError {
		t.Errorf("expected both lines newest first, got %+v", got)
	}

	buf.Reset()
	logsJSON, logsErrors = false, true
	if err := logsCmd.RunE(logsCmd, nil); err != nil {
		t.Fatalf("logs --errors: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Scraping failed") || strings.Contains(out, "Successfully scraped") {
		t.Errorf("--errors output wrong:\n%s", out)
	}
}

func TestLogsCmd_EmptyDay(t *testing.T) {
	setupPipeline(t)
	withLogsFlags(t)

	logsDate, logsJSON = "2001-01-01", false
	var buf bytes.Buffer
	logsCmd.SetOut(&buf)
	if err := logsCmd.RunE(logsCmd, nil); err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(buf.String(), "No logs for 2001-01-01") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestLogsCmd_Limit(t *testing.T) {
	f := setupPipeline(t)
	withLogsFlags(t)

	for i := 0; i < 5; i++ {
		f.registry.CaptureConsoleLog(core.CaptureInput{Message: "line"})
	}
	f.registry.Sync()

	logsDate, logsErrors, logsDomain, logsSession = storage.DateKey(time.Now()), false, "", ""
	logsLimit, logsJSON = 3, true
	var buf bytes.Buffer
	logsCmd.SetOut(&buf)
	if err := logsCmd.RunE(logsCmd, nil); err != nil {
		t.Fatalf("logs: %v", err)
	}
	var got []models.LogEntry
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 lines with --limit 3, got %d", len(got))
	}
}
