package core

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

const (
	// DomainGeneral buckets entries that carry no URL at all.
	DomainGeneral = "general"
	// DomainInvalidURLs buckets entries whose URL could not be parsed.
	DomainInvalidURLs = "invalid-urls"
)

// messageURLPattern finds the first scheme-anchored URL in a message.
var messageURLPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// Free-text markers emitted by older producers. Only consulted when a
// capture carries no explicit outcome.
var (
	successMarkers = []string{"Successfully scraped", "Cache hit", "✅"}
	failureMarkers = []string{"Error during scraping", "Scraping failed", "❌"}
)

// ClassifyMessage derives an outcome from the legacy success and failure
// markers. Success markers win when both appear.
func ClassifyMessage(message string) models.Outcome {
	for _, m := range successMarkers {
		if strings.Contains(message, m) {
			return models.OutcomeSuccess
		}
	}
	for _, m := range failureMarkers {
		if strings.Contains(message, m) {
			return models.OutcomeFailure
		}
	}
	return models.OutcomeUnknown
}

// ResolveOutcome returns the explicit outcome when set, else the classifier
// result for message.
func ResolveOutcome(explicit models.Outcome, message string) models.Outcome {
	if explicit != models.OutcomeUnknown {
		return explicit
	}
	return ClassifyMessage(message)
}

// DomainForEntry returns the bucket an entry belongs to: the hostname of its
// url field, else of the first URL in its message, else DomainGeneral.
func DomainForEntry(entry models.LogEntry) string {
	raw := entry.URL
	if raw == "" {
		raw = messageURLPattern.FindString(entry.Message)
	}
	if raw == "" {
		return DomainGeneral
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return DomainInvalidURLs
	}
	return u.Hostname()
}

// OrganizeLogsByDomain buckets logs by hostname. Each bucket's logs are
// ordered newest first.
func OrganizeLogsByDomain(logs []models.LogEntry) map[string]models.DomainLogs {
	buckets := make(map[string]*models.DomainLogs)
	for _, entry := range logs {
		domain := DomainForEntry(entry)
		b, ok := buckets[domain]
		if !ok {
			b = &models.DomainLogs{Domain: domain}
			buckets[domain] = b
		}
		b.Logs = append(b.Logs, entry)
		b.Total++
		switch entry.Level {
		case models.LevelError:
			b.Errors++
		case models.LevelWarn:
			b.Warnings++
		}
		if ResolveOutcome(entry.Outcome, entry.Message) == models.OutcomeSuccess {
			b.Successes++
		}
		if entry.Timestamp.After(b.LastActivity) {
			b.LastActivity = entry.Timestamp
		}
	}

	out := make(map[string]models.DomainLogs, len(buckets))
	for domain, b := range buckets {
		sort.SliceStable(b.Logs, func(i, j int) bool {
			return b.Logs[i].Timestamp.After(b.Logs[j].Timestamp)
		})
		out[domain] = *b
	}
	return out
}

// SortedDomains returns buckets ordered by most recent activity, then name.
func SortedDomains(buckets map[string]models.DomainLogs) []models.DomainLogs {
	out := make([]models.DomainLogs, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

// ProfileEntries synthesizes log entries from domain profiles: one error
// entry per recorded error and one success entry per step that has
// succeeded at least once.
func ProfileEntries(profiles []models.DomainProfile) []models.LogEntry {
	var entries []models.LogEntry
	for _, p := range profiles {
		fallbackURL := "https://" + p.Domain
		for _, e := range p.Errors {
			u := e.URL
			if u == "" {
				u = fallbackURL
			}
			entries = append(entries, models.LogEntry{
				ID:        uuid.NewString(),
				Level:     models.LevelError,
				Message:   fmt.Sprintf("[%s] %s", e.Step, e.Message),
				URL:       u,
				Timestamp: e.Timestamp,
				Source:    "domain-store",
				Outcome:   models.OutcomeFailure,
			})
		}

		steps := make([]string, 0, len(p.Steps))
		for name := range p.Steps {
			steps = append(steps, name)
		}
		sort.Strings(steps)
		for _, name := range steps {
			st := p.Steps[name]
			if st.Successes == 0 {
				continue
			}
			entry := models.LogEntry{
				ID:    uuid.NewString(),
				Level: models.LevelInfo,
				Message: fmt.Sprintf("Step %s: %d successes, %d failures, avg %.0fms",
					name, st.Successes, st.Failures, st.AvgDurationMS),
				URL:     fallbackURL,
				Source:  "domain-store",
				Outcome: models.OutcomeSuccess,
			}
			if st.LastSuccess != nil {
				entry.Timestamp = *st.LastSuccess
			}
			entries = append(entries, entry)
		}
	}
	return entries
}
