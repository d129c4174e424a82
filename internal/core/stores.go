package core

import "github.com/valter-silva-au/scrapewatch/pkg/models"

// DayFiles is the subset of the day-partitioned file store that the session
// registry needs. This interface is defined locally in core to avoid
// importing storage.
type DayFiles interface {
	// AppendLogs adds entries, given in arrival order, to the day's log
	// file in one read-modify-write.
	AppendLogs(date string, entries []models.LogEntry) error
	SaveSession(date string, session models.ScrapingSession) error
	LoadLogs(date string) ([]models.LogEntry, error)
	LoadSessions(date string) ([]models.ScrapingSession, error)
	// SessionDates lists days (YYYY-MM-DD) that have a session file.
	SessionDates() ([]string, error)
}

// DomainErrorStore is the read-only view of the per-domain error and step
// metrics store consumed by LoadScrapingErrorsByDomain.
// This interface is defined locally in core to avoid importing storage.
type DomainErrorStore interface {
	Profiles() ([]models.DomainProfile, error)
}
