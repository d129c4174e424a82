package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

const (
	sessionIDPrefix      = "scrape"
	defaultMaxLogs       = 1000
	defaultMaxSessionLog = 500
	loadConcurrency      = 4
)

// CaptureInput is one log line handed to CaptureConsoleLog.
type CaptureInput struct {
	Level      models.LogLevel
	Message    string
	Stack      string
	URL        string
	LineNumber int
	Source     string
	SessionID  string
	// Outcome marks the line as a scrape success or failure. When unknown
	// the message is run through ClassifyMessage.
	Outcome   models.Outcome
	Timestamp time.Time
}

// RegistryOptions configures a SessionRegistry. Zero values take defaults.
type RegistryOptions struct {
	Config       models.RegistryConfig
	Files        DayFiles
	DomainErrors DomainErrorStore
	Logger       *log.Logger
	Now          func() time.Time
}

// SessionRegistry tracks scraping sessions and captured log lines in memory
// and mirrors them to day files through a single background writer.
type SessionRegistry struct {
	mu        sync.Mutex
	sessions  map[string]*models.ScrapingSession
	logs      []models.LogEntry // newest first
	errors    []models.LogEntry // newest first
	currentID string
	closed    bool

	cfg          models.RegistryConfig
	files        DayFiles
	domainErrors DomainErrorStore
	logger       *log.Logger
	now          func() time.Time

	writer *dayWriter
}

// NewSessionRegistry creates a registry and starts its file writer when a
// DayFiles store is given. Call Close to drain pending writes.
func NewSessionRegistry(opts RegistryOptions) *SessionRegistry {
	r := &SessionRegistry{
		sessions:     make(map[string]*models.ScrapingSession),
		cfg:          opts.Config,
		files:        opts.Files,
		domainErrors: opts.DomainErrors,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if r.cfg.MaxLogsInMemory <= 0 {
		r.cfg.MaxLogsInMemory = defaultMaxLogs
	}
	if r.cfg.MaxSessionLogs <= 0 {
		r.cfg.MaxSessionLogs = defaultMaxSessionLog
	}
	if r.logger == nil {
		r.logger = &log.DefaultLogger
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.files != nil {
		r.writer = newDayWriter(r.files, r.logger)
	}
	return r
}

// GenerateSessionID builds a deterministic session id from the user, the
// search query and the start time.
func GenerateSessionID(userID, query string, start time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%d", sessionIDPrefix, sanitizeIDPart(userID), sanitizeIDPart(query), start.UnixMilli())
}

func sanitizeIDPart(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// CreateScrapingSession starts a running session, makes it the current
// session and persists it.
func (r *SessionRegistry) CreateScrapingSession(userID, userEmail, query string, urls []string) *models.ScrapingSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.now()
	s := &models.ScrapingSession{
		ID:          GenerateSessionID(userID, query, start),
		UserID:      userID,
		UserEmail:   userEmail,
		SearchQuery: query,
		StartTime:   start,
		Status:      models.SessionRunning,
		TotalURLs:   len(urls),
		URLs:        append([]string(nil), urls...),
		Logs:        []models.LogEntry{},
	}
	r.sessions[s.ID] = s
	r.currentID = s.ID
	r.queueSessionLocked(s)

	r.logger.Debug().Str("session_id", s.ID).Int("urls", len(urls)).Msg("scraping session created")
	return s.Clone()
}

// EndScrapingSession records the end time, terminal status and duration.
// Unknown ids are ignored.
func (r *SessionRegistry) EndScrapingSession(id string, status models.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	if !status.IsTerminal() {
		status = models.SessionCompleted
	}
	end := r.now()
	s.EndTime = &end
	s.Status = status
	s.DurationMS = end.Sub(s.StartTime).Milliseconds()
	if r.currentID == id {
		r.currentID = ""
	}
	r.queueSessionLocked(s)

	r.logger.Debug().Str("session_id", id).Str("status", string(status)).Int64("duration_ms", s.DurationMS).Msg("scraping session ended")
}

// CaptureConsoleLog records one log line globally and against its session.
func (r *SessionRegistry) CaptureConsoleLog(in CaptureInput) models.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	level := in.Level
	if level == "" {
		level = models.LevelLog
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	source := in.Source
	if source == "" {
		source = "console"
	}
	sessionID := in.SessionID
	if sessionID == "" && r.cfg.FallbackToCurrentSession {
		sessionID = r.currentID
	}

	entry := models.LogEntry{
		ID:         uuid.NewString(),
		Level:      level,
		Message:    in.Message,
		Stack:      in.Stack,
		URL:        in.URL,
		LineNumber: in.LineNumber,
		Timestamp:  ts,
		Source:     source,
		SessionID:  sessionID,
		Outcome:    ResolveOutcome(in.Outcome, in.Message),
	}

	r.logs = prependCapped(r.logs, entry, r.cfg.MaxLogsInMemory)
	if level == models.LevelError || level == models.LevelWarn {
		r.errors = prependCapped(r.errors, entry, r.maxErrors())
	}

	if s, ok := r.sessions[sessionID]; ok {
		s.Logs = append(s.Logs, entry)
		if over := len(s.Logs) - r.cfg.MaxSessionLogs; over > 0 {
			s.Logs = append([]models.LogEntry(nil), s.Logs[over:]...)
		}
		switch level {
		case models.LevelError:
			s.ErrorCount++
		case models.LevelWarn:
			s.WarningCount++
		}
		switch entry.Outcome {
		case models.OutcomeSuccess:
			s.SuccessCount++
			s.ProcessedURLs++
		case models.OutcomeFailure:
			s.ProcessedURLs++
		}
	}

	r.queueLogLocked(dateKey(ts), entry)
	return entry
}

func (r *SessionRegistry) maxErrors() int {
	if n := r.cfg.MaxLogsInMemory / 2; n > 0 {
		return n
	}
	return 1
}

func prependCapped(list []models.LogEntry, entry models.LogEntry, max int) []models.LogEntry {
	list = append(list, models.LogEntry{})
	copy(list[1:], list)
	list[0] = entry
	if len(list) > max {
		list = list[:max]
	}
	return list
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// SaveSessionToFile queues the session for its start day's file.
func (r *SessionRegistry) SaveSessionToFile(s models.ScrapingSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queueSessionLocked(&s)
}

// SaveLogToFile queues the entry for its day's file.
func (r *SessionRegistry) SaveLogToFile(entry models.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queueLogLocked(dateKey(entry.Timestamp), entry)
}

func (r *SessionRegistry) queueSessionLocked(s *models.ScrapingSession) {
	if r.writer == nil {
		return
	}
	r.writer.queueSession(dateKey(s.StartTime), *s.Clone())
}

func (r *SessionRegistry) queueLogLocked(date string, entry models.LogEntry) {
	if r.writer == nil {
		return
	}
	r.writer.queueLog(date, entry)
}

// Sync blocks until every write queued before the call has been applied.
func (r *SessionRegistry) Sync() {
	if r.writer != nil {
		r.writer.sync()
	}
}

// LoadLogsFromFile returns the logs stored for date (YYYY-MM-DD). Missing
// or malformed files yield an empty result.
func (r *SessionRegistry) LoadLogsFromFile(date string) []models.LogEntry {
	if r.files == nil {
		return []models.LogEntry{}
	}
	logs, err := r.files.LoadLogs(date)
	if err != nil {
		r.logger.Warn().Err(err).Str("date", date).Msg("failed to load logs from file")
		return []models.LogEntry{}
	}
	if logs == nil {
		logs = []models.LogEntry{}
	}
	return logs
}

// LoadSessionsFromFile returns the sessions stored for date (YYYY-MM-DD).
// Missing or malformed files yield an empty result.
func (r *SessionRegistry) LoadSessionsFromFile(date string) []models.ScrapingSession {
	if r.files == nil {
		return []models.ScrapingSession{}
	}
	sessions, err := r.files.LoadSessions(date)
	if err != nil {
		r.logger.Warn().Err(err).Str("date", date).Msg("failed to load sessions from file")
		return []models.ScrapingSession{}
	}
	if sessions == nil {
		sessions = []models.ScrapingSession{}
	}
	return sessions
}

// LoadAllSessionsFromFiles merges every session day file with the in-memory
// sessions. Day files are scanned newest day first and the first copy of an
// id wins, so newer day files win over older ones. Memory wins over files.
// The result is ordered by start time, newest first.
func (r *SessionRegistry) LoadAllSessionsFromFiles() []models.ScrapingSession {
	var perDay [][]models.ScrapingSession
	if r.files != nil {
		dates, err := r.files.SessionDates()
		if err != nil {
			r.logger.Warn().Err(err).Msg("failed to list session files")
		}
		sort.Sort(sort.Reverse(sort.StringSlice(dates)))
		perDay = make([][]models.ScrapingSession, len(dates))
		g, _ := errgroup.WithContext(context.Background())
		g.SetLimit(loadConcurrency)
		for i, date := range dates {
			g.Go(func() error {
				perDay[i] = r.LoadSessionsFromFile(date)
				return nil
			})
		}
		_ = g.Wait()
	}

	merged := make(map[string]models.ScrapingSession)
	for _, day := range perDay {
		for _, s := range day {
			if _, seen := merged[s.ID]; !seen {
				merged[s.ID] = s
			}
		}
	}

	r.mu.Lock()
	for id, s := range r.sessions {
		merged[id] = *s.Clone()
	}
	r.mu.Unlock()

	return sortSessions(merged)
}

func sortSessions(m map[string]models.ScrapingSession) []models.ScrapingSession {
	out := make([]models.ScrapingSession, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// LoadScrapingErrorsByDomain buckets entries synthesized from the domain
// error store by domain.
func (r *SessionRegistry) LoadScrapingErrorsByDomain() map[string]models.DomainLogs {
	if r.domainErrors == nil {
		return map[string]models.DomainLogs{}
	}
	profiles, err := r.domainErrors.Profiles()
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to load domain profiles")
		return map[string]models.DomainLogs{}
	}
	return OrganizeLogsByDomain(ProfileEntries(profiles))
}

// ClearLogs empties the in-memory log and error lists. Files and session
// logs are untouched.
func (r *SessionRegistry) ClearLogs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = nil
	r.errors = nil
}

// GetSession returns a copy of the session.
func (r *SessionRegistry) GetSession(id string) (*models.ScrapingSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// GetAllSessions returns copies of the in-memory sessions, newest first.
func (r *SessionRegistry) GetAllSessions() []models.ScrapingSession {
	r.mu.Lock()
	m := make(map[string]models.ScrapingSession, len(r.sessions))
	for id, s := range r.sessions {
		m[id] = *s.Clone()
	}
	r.mu.Unlock()
	return sortSessions(m)
}

// CurrentSessionID returns the id of the most recently created session that
// has not ended.
func (r *SessionRegistry) CurrentSessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentID
}

// GetAllLogs returns the in-memory logs, newest first.
func (r *SessionRegistry) GetAllLogs() []models.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.LogEntry(nil), r.logs...)
}

// GetAllErrors returns the in-memory error and warning logs, newest first.
func (r *SessionRegistry) GetAllErrors() []models.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.LogEntry(nil), r.errors...)
}

// GetStats summarises the in-memory state.
func (r *SessionRegistry) GetStats() models.SessionStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := 0
	for _, s := range r.sessions {
		if s.Status == models.SessionRunning {
			active++
		}
	}
	return models.SessionStats{
		TotalLogs:        len(r.logs),
		TotalErrors:      len(r.errors),
		TotalSessions:    len(r.sessions),
		ActiveSessions:   active,
		CurrentSessionID: r.currentID,
	}
}

// Close drains the file writer. Later writes are applied synchronously.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	if r.writer != nil {
		r.writer.stop()
	}
}
