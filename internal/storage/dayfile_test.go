package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

func newTestDayFileStore(t *testing.T, maxLogs, maxSessions int) *DayFileStore {
	t.Helper()
	s, err := NewDayFileStore(filepath.Join(t.TempDir(), "logs"), maxLogs, maxSessions)
	if err != nil {
		t.Fatalf("creating day file store: %v", err)
	}
	return s
}

func TestDateKey(t *testing.T) {
	loc := time.FixedZone("AEST", 10*60*60)
	// 08:00 on the 16th in Sydney is still the 15th in UTC.
	ts := time.Date(2025, 1, 16, 8, 0, 0, 0, loc)
	if got := DateKey(ts); got != "2025-01-15" {
		t.Errorf("DateKey = %s, want 2025-01-15", got)
	}
}

func TestDayFileStore_Paths(t *testing.T) {
	s := newTestDayFileStore(t, 0, 0)
	if got := filepath.Base(s.LogsPath("2025-01-15")); got != "console-logs-2025-01-15.json" {
		t.Errorf("unexpected logs file name %s", got)
	}
	if got := filepath.Base(s.SessionsPath("2025-01-15")); got != "scraping-sessions-2025-01-15.json" {
		t.Errorf("unexpected sessions file name %s", got)
	}
}

func TestDayFileStore_AppendLogPrependsAndTruncates(t *testing.T) {
	s := newTestDayFileStore(t, 3, 0)
	date := "2025-01-15"

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := s.AppendLog(date, models.LogEntry{ID: id, Level: models.LevelLog, Message: id}); err != nil {
			t.Fatalf("appending log %s: %v", id, err)
		}
	}

	logs, err := s.LoadLogs(date)
	if err != nil {
		t.Fatalf("loading logs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 logs after truncation, got %d", len(logs))
	}
	for i, want := range []string{"d", "c", "b"} {
		if logs[i].ID != want {
			t.Errorf("log %d: expected %s, got %s", i, want, logs[i].ID)
		}
	}
}

func TestDayFileStore_AppendLogsBatch(t *testing.T) {
	s := newTestDayFileStore(t, 4, 0)
	date := "2025-01-15"

	if err := s.AppendLog(date, models.LogEntry{ID: "a"}); err != nil {
		t.Fatalf("appending log: %v", err)
	}
	batch := []models.LogEntry{{ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"}}
	if err := s.AppendLogs(date, batch); err != nil {
		t.Fatalf("appending batch: %v", err)
	}
	if err := s.AppendLogs(date, nil); err != nil {
		t.Fatalf("appending empty batch: %v", err)
	}

	logs, err := s.LoadLogs(date)
	if err != nil {
		t.Fatalf("loading logs: %v", err)
	}
	want := []string{"e", "d", "c", "b"}
	if len(logs) != len(want) {
		t.Fatalf("expected %d logs, got %d", len(want), len(logs))
	}
	for i := range want {
		if logs[i].ID != want[i] {
			t.Errorf("log %d: expected %s, got %s", i, want[i], logs[i].ID)
		}
	}
}

func TestDayFileStore_SaveSessionReplacesByID(t *testing.T) {
	s := newTestDayFileStore(t, 0, 0)
	date := "2025-01-15"

	first := models.ScrapingSession{ID: "s1", Status: models.SessionRunning}
	other := models.ScrapingSession{ID: "s2", Status: models.SessionRunning}
	for _, sess := range []models.ScrapingSession{first, other} {
		if err := s.SaveSession(date, sess); err != nil {
			t.Fatalf("saving session: %v", err)
		}
	}

	first.Status = models.SessionCompleted
	first.SuccessCount = 4
	if err := s.SaveSession(date, first); err != nil {
		t.Fatalf("saving updated session: %v", err)
	}

	sessions, err := s.LoadSessions(date)
	if err != nil {
		t.Fatalf("loading sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	var found bool
	for _, sess := range sessions {
		if sess.ID == "s1" {
			found = true
			if sess.Status != models.SessionCompleted || sess.SuccessCount != 4 {
				t.Errorf("expected replaced session, got %+v", sess)
			}
		}
	}
	if !found {
		t.Error("expected session s1 in file")
	}
}

func TestDayFileStore_SaveSessionTruncates(t *testing.T) {
	s := newTestDayFileStore(t, 0, 2)
	date := "2025-01-15"
	for _, id := range []string{"s1", "s2", "s3"} {
		if err := s.SaveSession(date, models.ScrapingSession{ID: id}); err != nil {
			t.Fatalf("saving session: %v", err)
		}
	}

	sessions, err := s.LoadSessions(date)
	if err != nil {
		t.Fatalf("loading sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "s3" || sessions[1].ID != "s2" {
		t.Errorf("expected newest two sessions, got %+v", sessions)
	}
}

func TestDayFileStore_LoadMissingAndMalformed(t *testing.T) {
	s := newTestDayFileStore(t, 0, 0)

	logs, err := s.LoadLogs("2020-01-01")
	if err != nil || len(logs) != 0 {
		t.Errorf("expected empty result for missing file, got %v, %v", logs, err)
	}

	if err := os.WriteFile(s.SessionsPath("2025-01-15"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := s.LoadSessions("2025-01-15"); err == nil {
		t.Error("expected parse error for malformed file")
	}

	// A corrupt file is replaced on the next write.
	if err := s.SaveSession("2025-01-15", models.ScrapingSession{ID: "s1"}); err != nil {
		t.Fatalf("saving over corrupt file: %v", err)
	}
	sessions, err := s.LoadSessions("2025-01-15")
	if err != nil || len(sessions) != 1 {
		t.Errorf("expected recovered file with 1 session, got %v, %v", sessions, err)
	}
}

func TestDayFileStore_Dates(t *testing.T) {
	s := newTestDayFileStore(t, 0, 0)
	for _, date := range []string{"2025-01-14", "2025-01-16", "2025-01-15"} {
		if err := s.SaveSession(date, models.ScrapingSession{ID: date}); err != nil {
			t.Fatalf("saving session: %v", err)
		}
	}
	if err := s.AppendLog("2025-01-10", models.LogEntry{ID: "x"}); err != nil {
		t.Fatalf("appending log: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), "scraping-sessions-notadate.json"), []byte("[]"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	dates, err := s.SessionDates()
	if err != nil {
		t.Fatalf("listing dates: %v", err)
	}
	want := []string{"2025-01-16", "2025-01-15", "2025-01-14"}
	if len(dates) != len(want) {
		t.Fatalf("expected %v, got %v", want, dates)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Errorf("date %d: expected %s, got %s", i, want[i], dates[i])
		}
	}

	logDates, err := s.LogDates()
	if err != nil {
		t.Fatalf("listing log dates: %v", err)
	}
	if len(logDates) != 1 || logDates[0] != "2025-01-10" {
		t.Errorf("expected [2025-01-10], got %v", logDates)
	}
}
