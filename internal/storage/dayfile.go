package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

const (
	logsFilePrefix     = "console-logs-"
	sessionsFilePrefix = "scraping-sessions-"
	dayFileSuffix      = ".json"
	dayLayout          = "2006-01-02"

	defaultMaxLogsPerFile     = 10000
	defaultMaxSessionsPerFile = 1000
)

// DayFileStore keeps one JSON array per UTC day for log entries and one for
// sessions. Every write rewrites the whole array under an exclusive file
// lock.
type DayFileStore struct {
	dir                string
	maxLogsPerFile     int
	maxSessionsPerFile int
}

// NewDayFileStore creates a store rooted at dir, creating it if needed.
// Non-positive limits take defaults.
func NewDayFileStore(dir string, maxLogsPerFile, maxSessionsPerFile int) (*DayFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	if maxLogsPerFile <= 0 {
		maxLogsPerFile = defaultMaxLogsPerFile
	}
	if maxSessionsPerFile <= 0 {
		maxSessionsPerFile = defaultMaxSessionsPerFile
	}
	return &DayFileStore{
		dir:                dir,
		maxLogsPerFile:     maxLogsPerFile,
		maxSessionsPerFile: maxSessionsPerFile,
	}, nil
}

// Dir returns the directory holding the day files.
func (s *DayFileStore) Dir() string {
	return s.dir
}

// DateKey formats t as the UTC day used in file names.
func DateKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// LogsPath returns the log day file for date (YYYY-MM-DD).
func (s *DayFileStore) LogsPath(date string) string {
	return filepath.Join(s.dir, logsFilePrefix+date+dayFileSuffix)
}

// SessionsPath returns the session day file for date (YYYY-MM-DD).
func (s *DayFileStore) SessionsPath(date string) string {
	return filepath.Join(s.dir, sessionsFilePrefix+date+dayFileSuffix)
}

// AppendLog prepends entry to the log file of date and truncates the file to
// the configured maximum, dropping the oldest entries.
func (s *DayFileStore) AppendLog(date string, entry models.LogEntry) error {
	return s.AppendLogs(date, []models.LogEntry{entry})
}

// AppendLogs adds entries, given oldest first, to the log file of date in a
// single locked rewrite. The file stays newest first and is truncated to the
// configured maximum.
func (s *DayFileStore) AppendLogs(date string, entries []models.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	path := s.LogsPath(date)
	return s.update(path, func() error {
		existing, err := readArray[models.LogEntry](path)
		if err != nil {
			// A corrupt day file is replaced rather than blocking new writes.
			existing = nil
		}
		logs := make([]models.LogEntry, 0, len(entries)+len(existing))
		for i := len(entries) - 1; i >= 0; i-- {
			logs = append(logs, entries[i])
		}
		logs = append(logs, existing...)
		if len(logs) > s.maxLogsPerFile {
			logs = logs[:s.maxLogsPerFile]
		}
		return writeArray(path, logs)
	})
}

// SaveSession replaces the session with the same id in the session file of
// date, or prepends it when absent, then truncates to the configured maximum.
func (s *DayFileStore) SaveSession(date string, session models.ScrapingSession) error {
	path := s.SessionsPath(date)
	return s.update(path, func() error {
		sessions, err := readArray[models.ScrapingSession](path)
		if err != nil {
			sessions = nil
		}
		replaced := false
		for i := range sessions {
			if sessions[i].ID == session.ID {
				sessions[i] = session
				replaced = true
				break
			}
		}
		if !replaced {
			sessions = append([]models.ScrapingSession{session}, sessions...)
		}
		if len(sessions) > s.maxSessionsPerFile {
			sessions = sessions[:s.maxSessionsPerFile]
		}
		return writeArray(path, sessions)
	})
}

// LoadLogs reads the log file of date. A missing file yields no entries.
func (s *DayFileStore) LoadLogs(date string) ([]models.LogEntry, error) {
	logs, err := readArray[models.LogEntry](s.LogsPath(date))
	if err != nil {
		return nil, fmt.Errorf("loading logs for %s: %w", date, err)
	}
	return logs, nil
}

// LoadSessions reads the session file of date. A missing file yields no
// sessions.
func (s *DayFileStore) LoadSessions(date string) ([]models.ScrapingSession, error) {
	sessions, err := readArray[models.ScrapingSession](s.SessionsPath(date))
	if err != nil {
		return nil, fmt.Errorf("loading sessions for %s: %w", date, err)
	}
	return sessions, nil
}

// SessionDates lists the days that have a session file, newest first.
func (s *DayFileStore) SessionDates() ([]string, error) {
	return s.dates(sessionsFilePrefix)
}

// LogDates lists the days that have a log file, newest first.
func (s *DayFileStore) LogDates() ([]string, error) {
	return s.dates(logsFilePrefix)
}

func (s *DayFileStore) dates(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing day files: %w", err)
	}

	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, dayFileSuffix) {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, prefix), dayFileSuffix)
		if _, err := time.Parse(dayLayout, date); err != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// update runs fn while holding the lock file that guards path.
func (s *DayFileStore) update(path string, fn func() error) error {
	lock, err := lockDayFile(path)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()
	return fn()
}

func readArray[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return items, nil
}

// writeArray writes items as an indented JSON array atomically.
func writeArray[T any](path string, items []T) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", filepath.Base(path), err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming day file: %w", err)
	}
	return nil
}
