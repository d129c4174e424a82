package core

import (
	"sync"

	"github.com/phuslu/log"

	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

// defaultMaxPendingLogs bounds the log entries waiting for the writer.
// Entries queued past it are dropped and reported on the next flush.
const defaultMaxPendingLogs = 10000

type sessionWrite struct {
	date    string
	session models.ScrapingSession
}

// writeBatch holds everything queued since the writer last woke up. Log
// entries are grouped per day in arrival order; sessions keep only their
// latest state.
type writeBatch struct {
	logDates    []string
	logs        map[string][]models.LogEntry
	logCount    int
	sessionKeys []string
	sessions    map[string]sessionWrite
	dropped     int
	barriers    []chan struct{}
}

func newWriteBatch() *writeBatch {
	return &writeBatch{
		logs:     make(map[string][]models.LogEntry),
		sessions: make(map[string]sessionWrite),
	}
}

func (b *writeBatch) empty() bool {
	return b.logCount == 0 && len(b.sessions) == 0 && len(b.barriers) == 0 && b.dropped == 0
}

func (b *writeBatch) addLog(date string, entry models.LogEntry) {
	if _, ok := b.logs[date]; !ok {
		b.logDates = append(b.logDates, date)
	}
	b.logs[date] = append(b.logs[date], entry)
	b.logCount++
}

func (b *writeBatch) addSession(date string, s models.ScrapingSession) {
	key := date + "/" + s.ID
	if _, ok := b.sessions[key]; !ok {
		b.sessionKeys = append(b.sessionKeys, key)
	}
	b.sessions[key] = sessionWrite{date: date, session: s}
}

// dayWriter applies queued day-file writes on a single goroutine. Queueing
// never waits on I/O: callers only touch the pending batch under w.mu.
type dayWriter struct {
	files      DayFiles
	logger     *log.Logger
	maxPending int

	mu      sync.Mutex
	cond    *sync.Cond
	pending *writeBatch
	stopped bool
	done    chan struct{}
}

func newDayWriter(files DayFiles, logger *log.Logger) *dayWriter {
	w := &dayWriter{
		files:      files,
		logger:     logger,
		maxPending: defaultMaxPendingLogs,
		pending:    newWriteBatch(),
		done:       make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

// queueLog hands entry to the writer. After stop it is written inline.
func (w *dayWriter) queueLog(date string, entry models.LogEntry) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		w.appendLogs(date, []models.LogEntry{entry})
		return
	}
	if w.pending.logCount >= w.maxPending {
		w.pending.dropped++
	} else {
		w.pending.addLog(date, entry)
	}
	w.mu.Unlock()
	w.cond.Signal()
}

// queueSession hands s to the writer. After stop it is written inline.
func (w *dayWriter) queueSession(date string, s models.ScrapingSession) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		w.saveSession(sessionWrite{date: date, session: s})
		return
	}
	w.pending.addSession(date, s)
	w.mu.Unlock()
	w.cond.Signal()
}

// sync waits until everything queued before the call has been applied.
func (w *dayWriter) sync() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	done := make(chan struct{})
	w.pending.barriers = append(w.pending.barriers, done)
	w.mu.Unlock()
	w.cond.Signal()
	<-done
}

// stop drains the pending batch and ends the writer goroutine.
func (w *dayWriter) stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.stopped = true
	w.mu.Unlock()
	w.cond.Signal()
	<-w.done
}

func (w *dayWriter) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for w.pending.empty() && !w.stopped {
			w.cond.Wait()
		}
		batch := w.pending
		w.pending = newWriteBatch()
		stopped := w.stopped
		w.mu.Unlock()

		w.flush(batch)
		if stopped {
			return
		}
	}
}

func (w *dayWriter) flush(b *writeBatch) {
	if b.dropped > 0 {
		w.logger.Warn().Int("dropped", b.dropped).Msg("day file writer behind, dropped log writes")
	}
	for _, date := range b.logDates {
		w.appendLogs(date, b.logs[date])
	}
	for _, key := range b.sessionKeys {
		w.saveSession(b.sessions[key])
	}
	for _, done := range b.barriers {
		close(done)
	}
}

func (w *dayWriter) appendLogs(date string, entries []models.LogEntry) {
	if err := w.files.AppendLogs(date, entries); err != nil {
		w.logger.Warn().Err(err).Str("date", date).Int("entries", len(entries)).Msg("failed to save logs to file")
	}
}

func (w *dayWriter) saveSession(sw sessionWrite) {
	if err := w.files.SaveSession(sw.date, sw.session); err != nil {
		w.logger.Warn().Err(err).Str("session_id", sw.session.ID).Msg("failed to save session to file")
	}
}
