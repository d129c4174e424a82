package observability

import (
	"fmt"
	"time"
)

// emit logs with a helper's async default; caller options are applied after
// the default and so override it.
func (l *EventLog) emit(category, message string, data map[string]any, asyncDefault bool, opts []LogOption) {
	o := logOptions{async: &asyncDefault}
	for _, opt := range opts {
		opt(&o)
	}
	l.log(category, message, data, o)
}

// Cache logs a cache operation.
func (l *EventLog) Cache(op, key string, data map[string]any, opts ...LogOption) {
	l.emit("cache", fmt.Sprintf("[CACHE] %s: %s", op, key), data, false, opts)
}

// Scraper logs a scraper action against a URL.
func (l *EventLog) Scraper(action, url string, data map[string]any, opts ...LogOption) {
	l.emit("scraper", fmt.Sprintf("[SCRAPER] %s: %s", action, url), data, false, opts)
}

// Service logs an action taken by a named service.
func (l *EventLog) Service(service, action string, data map[string]any, opts ...LogOption) {
	l.emit("service", fmt.Sprintf("[SERVICE:%s] %s", service, action), data, false, opts)
}

// Buffer logs a buffer state change.
func (l *EventLog) Buffer(action string, size int, data map[string]any, opts ...LogOption) {
	l.emit("buffer", fmt.Sprintf("[BUFFER] %s (size=%d)", action, size), data, true, opts)
}

// Error logs a failure. A nil err is rendered as "unknown error".
func (l *EventLog) Error(context string, err error, data map[string]any, opts ...LogOption) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	l.emit("error", fmt.Sprintf("[ERROR] %s: %s", context, msg), data, false, opts)
}

// Timing logs how long an operation took.
func (l *EventLog) Timing(op string, d time.Duration, data map[string]any, opts ...LogOption) {
	l.emit("timing", fmt.Sprintf("[TIMING] %s took %dms", op, d.Milliseconds()), data, true, opts)
}

// Win logs a notable success.
func (l *EventLog) Win(message string, data map[string]any, opts ...LogOption) {
	l.emit("win", "[WIN] "+message, data, false, opts)
}

// Retry logs a retry attempt.
func (l *EventLog) Retry(op string, attempt, maxAttempts int, data map[string]any, opts ...LogOption) {
	l.emit("retry", fmt.Sprintf("[RETRY] %s attempt %d/%d", op, attempt, maxAttempts), data, false, opts)
}

// Queue logs a queue state change.
func (l *EventLog) Queue(action string, length int, data map[string]any, opts ...LogOption) {
	l.emit("queue", fmt.Sprintf("[QUEUE] %s (length=%d)", action, length), data, true, opts)
}

// Parallel logs a fan-out of tasks.
func (l *EventLog) Parallel(action string, count int, data map[string]any, opts ...LogOption) {
	l.emit("parallel", fmt.Sprintf("[PARALLEL] %s (%d tasks)", action, count), data, true, opts)
}

// Batch logs a batch operation.
func (l *EventLog) Batch(action string, size int, data map[string]any, opts ...LogOption) {
	l.emit("batch", fmt.Sprintf("[BATCH] %s (%d items)", action, size), data, true, opts)
}

// DomainProfile logs a change to a domain's scraping profile.
func (l *EventLog) DomainProfile(domain, action string, data map[string]any, opts ...LogOption) {
	l.emit("domainProfile", fmt.Sprintf("[DOMAIN:%s] %s", domain, action), data, false, opts)
}
