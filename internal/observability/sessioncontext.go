package observability

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

// LogOption adjusts how a single Log call is decorated and dispatched.
type LogOption func(*logOptions)

type logOptions struct {
	sessionID     string
	correlationID string
	extra         map[string]any
	async         *bool
}

// WithSession correlates the event with a stored session context.
func WithSession(sessionID string) LogOption {
	return func(o *logOptions) { o.sessionID = sessionID }
}

// WithCorrelationID tags the event with a request-level correlation id.
func WithCorrelationID(id string) LogOption {
	return func(o *logOptions) { o.correlationID = id }
}

// WithExtraContext merges extra fields over the session context.
func WithExtraContext(extra map[string]any) LogOption {
	return func(o *logOptions) { o.extra = extra }
}

// WithAsync forces buffering (true) or, for categories that are not high
// frequency, immediate dispatch (false).
func WithAsync(async bool) LogOption {
	return func(o *logOptions) { o.async = &async }
}

// SetSessionContext creates or replaces the context stored for sessionID.
// Empty fields take defaults; the domain is derived from the URL when unset.
func (l *EventLog) SetSessionContext(sessionID string, ctx models.SessionContext) {
	if sessionID == "" {
		return
	}
	ctx.SessionID = sessionID
	if ctx.UserID == "" {
		ctx.UserID = "anonymous"
	}
	if ctx.Domain == "" && ctx.URL != "" {
		ctx.Domain = ExtractDomain(ctx.URL)
	}
	if ctx.Domain == "" {
		ctx.Domain = "unknown"
	}
	if ctx.Step == "" {
		ctx.Step = "unknown"
	}
	if ctx.Attempt < 1 {
		ctx.Attempt = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	ctx.Timestamp = l.now()
	l.contexts[sessionID] = &ctx
}

// UpdateSessionContext merges the non-zero fields of update into an existing
// context. Unknown session ids are ignored.
func (l *EventLog) UpdateSessionContext(sessionID string, update models.SessionContext) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, ok := l.contexts[sessionID]
	if !ok {
		return
	}
	if update.UserID != "" {
		ctx.UserID = update.UserID
	}
	if update.URL != "" {
		ctx.URL = update.URL
		if update.Domain == "" {
			if d := ExtractDomain(update.URL); d != "" {
				ctx.Domain = d
			}
		}
	}
	if update.Domain != "" {
		ctx.Domain = update.Domain
	}
	if update.Step != "" {
		ctx.Step = update.Step
	}
	if update.Attempt > 0 {
		ctx.Attempt = update.Attempt
	}
	ctx.Timestamp = l.now()
}

// ClearSessionContext removes the context for sessionID.
func (l *EventLog) ClearSessionContext(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.contexts, sessionID)
}

// SessionContext returns a copy of the stored context, if any.
func (l *EventLog) SessionContext(sessionID string) (models.SessionContext, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ctx, ok := l.contexts[sessionID]
	if !ok {
		return models.SessionContext{}, false
	}
	return *ctx, true
}

// contextPrefix renders [s:<last4>|u:<last8>|<domain>|<step>|attempt=N|c:<id>]
// followed by a space. The attempt and correlation segments are optional.
func contextPrefix(ctx models.SessionContext, correlationID string) string {
	parts := []string{
		"s:" + lastN(ctx.SessionID, 4),
		"u:" + lastN(ctx.UserID, 8),
		ctx.Domain,
		ctx.Step,
	}
	if ctx.Attempt > 1 {
		parts = append(parts, "attempt="+strconv.Itoa(ctx.Attempt))
	}
	if correlationID != "" {
		parts = append(parts, "c:"+correlationID)
	}
	return "[" + strings.Join(parts, "|") + "] "
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// ExtractDomain returns the hostname of rawURL without a leading "www.".
// Strings that do not parse as absolute URLs fall back to stripping the
// scheme and taking everything up to the first "/".
func ExtractDomain(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		return strings.TrimPrefix(u.Hostname(), "www.")
	}

	s := schemePrefix.ReplaceAllString(rawURL, "")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	return s
}
