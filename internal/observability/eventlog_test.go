package observability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/scrapewatch/internal/logging"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
)

type recordedEvent struct {
	category string
	message  string
	meta     map[string]any
}

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingSink) sink(category, message string, meta map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{category: category, message: message, meta: meta})
}

func (r *recordingSink) all() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEventLog(t *testing.T, bufferSize int) (*EventLog, *recordingSink) {
	t.Helper()
	rec := &recordingSink{}
	l := NewEventLog(EventLogOptions{
		BufferSize:    bufferSize,
		FlushInterval: time.Hour,
		Sink:          rec.sink,
	})
	t.Cleanup(l.Shutdown)
	return l, rec
}

func TestEventLog_SyncDispatch(t *testing.T) {
	l, rec := newTestEventLog(t, 10)

	l.Log("scraper", "fetched page", map[string]any{"status": 200})

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 dispatched event, got %d", len(events))
	}
	if events[0].category != "scraper" {
		t.Errorf("expected category scraper, got %s", events[0].category)
	}
	if events[0].message != "fetched page" {
		t.Errorf("expected message 'fetched page', got %s", events[0].message)
	}
	if events[0].meta["status"] != 200 {
		t.Errorf("expected status 200 in meta, got %v", events[0].meta["status"])
	}
	if l.BufferLen() != 0 {
		t.Errorf("expected empty buffer, got %d", l.BufferLen())
	}
}

func TestEventLog_HighFrequencyCategoriesAreBuffered(t *testing.T) {
	for _, category := range []string{"timing", "parallel", "batch", "polling"} {
		t.Run(category, func(t *testing.T) {
			l, rec := newTestEventLog(t, 10)

			l.Log(category, "tick", nil)

			if len(rec.all()) != 0 {
				t.Fatalf("expected no immediate dispatch for %s", category)
			}
			if l.BufferLen() != 1 {
				t.Fatalf("expected 1 buffered event, got %d", l.BufferLen())
			}
			if n := l.Flush(); n != 1 {
				t.Errorf("expected flush to drain 1 event, got %d", n)
			}
			if len(rec.all()) != 1 {
				t.Errorf("expected event dispatched after flush")
			}
		})
	}
}

func TestEventLog_AsyncOption(t *testing.T) {
	l, rec := newTestEventLog(t, 10)

	l.Log("service", "buffered", nil, WithAsync(true))
	if len(rec.all()) != 0 {
		t.Fatal("expected async event to be buffered")
	}

	// A high-frequency category stays buffered even when async is false.
	l.Log("timing", "still buffered", nil, WithAsync(false))
	if l.BufferLen() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", l.BufferLen())
	}
}

func TestEventLog_DrainAtCapacityKeepsOrder(t *testing.T) {
	l, rec := newTestEventLog(t, 3)

	l.Log("timing", "one", nil)
	l.Log("timing", "two", nil)
	if len(rec.all()) != 0 {
		t.Fatal("expected no dispatch below capacity")
	}
	l.Log("timing", "three", nil)

	events := rec.all()
	if len(events) != 3 {
		t.Fatalf("expected 3 events drained at capacity, got %d", len(events))
	}
	for i, want := range []string{"one", "two", "three"} {
		if events[i].message != want {
			t.Errorf("event %d: expected %q, got %q", i, want, events[i].message)
		}
	}
	if l.BufferLen() != 0 {
		t.Errorf("expected empty buffer after drain, got %d", l.BufferLen())
	}
	if s := l.Stats(); s.Flushes != 1 || s.Buffered != 3 || s.Dispatched != 3 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestEventLog_ContextPrefix(t *testing.T) {
	l, rec := newTestEventLog(t, 10)

	l.SetSessionContext("scrape_abc_1234", models.SessionContext{
		UserID: "user-0042abcd",
		Domain: "x.com",
		Step:   "fetch",
	})
	l.Log("scraper", "loading", map[string]any{"step": "overridden"}, WithSession("scrape_abc_1234"))

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	want := "[s:1234|u:0042abcd|x.com|fetch] loading"
	if events[0].message != want {
		t.Errorf("expected message %q, got %q", want, events[0].message)
	}
	if events[0].meta["step"] != "fetch" {
		t.Errorf("expected context to win over data, got step=%v", events[0].meta["step"])
	}
	if events[0].meta["sessionId"] != "scrape_abc_1234" {
		t.Errorf("expected sessionId in meta, got %v", events[0].meta["sessionId"])
	}
}

func TestEventLog_ContextPrefixWithAttemptAndCorrelation(t *testing.T) {
	l, rec := newTestEventLog(t, 10)

	l.SetSessionContext("s1", models.SessionContext{UserID: "u1", URL: "https://www.jobs.example.com/list", Attempt: 3})
	l.Log("retry", "again", nil,
		WithSession("s1"),
		WithCorrelationID("req-9"),
		WithExtraContext(map[string]any{"userId": "extra-wins"}),
	)

	got := rec.all()[0]
	want := "[s:s1|u:u1|jobs.example.com|unknown|attempt=3|c:req-9] again"
	if got.message != want {
		t.Errorf("expected %q, got %q", want, got.message)
	}
	if got.meta["userId"] != "extra-wins" {
		t.Errorf("expected extra context to win, got %v", got.meta["userId"])
	}
	if got.meta["correlationId"] != "req-9" {
		t.Errorf("expected correlationId in meta, got %v", got.meta["correlationId"])
	}
}

func TestEventLog_UnknownSessionHasNoPrefix(t *testing.T) {
	l, rec := newTestEventLog(t, 10)

	l.Log("scraper", "plain", nil, WithSession("missing"))

	got := rec.all()[0]
	if got.message != "plain" {
		t.Errorf("expected unprefixed message, got %q", got.message)
	}
	if got.meta["sessionId"] != "missing" {
		t.Errorf("expected sessionId carried in meta, got %v", got.meta["sessionId"])
	}
}

func TestEventLog_SessionContextLifecycle(t *testing.T) {
	l, _ := newTestEventLog(t, 10)

	// Updating an absent context is a no-op.
	l.UpdateSessionContext("s1", models.SessionContext{Step: "parse"})
	if _, ok := l.SessionContext("s1"); ok {
		t.Fatal("expected update on absent id not to create a context")
	}

	l.SetSessionContext("s1", models.SessionContext{})
	ctx, ok := l.SessionContext("s1")
	if !ok {
		t.Fatal("expected context to exist after set")
	}
	if ctx.UserID != "anonymous" || ctx.Step != "unknown" || ctx.Attempt != 1 {
		t.Errorf("expected defaults, got %+v", ctx)
	}

	l.UpdateSessionContext("s1", models.SessionContext{Step: "parse", URL: "https://acme.io/jobs"})
	ctx, _ = l.SessionContext("s1")
	if ctx.Step != "parse" {
		t.Errorf("expected step parse, got %s", ctx.Step)
	}
	if ctx.Domain != "acme.io" {
		t.Errorf("expected domain derived from url, got %s", ctx.Domain)
	}
	if ctx.UserID != "anonymous" {
		t.Errorf("expected untouched userId, got %s", ctx.UserID)
	}

	l.ClearSessionContext("s1")
	if _, ok := l.SessionContext("s1"); ok {
		t.Error("expected context removed after clear")
	}
}

func TestEventLog_ObserversSeeSyncAndBufferedEvents(t *testing.T) {
	l, _ := newTestEventLog(t, 10)

	var mu sync.Mutex
	var seen []string
	l.Subscribe(ObserverFunc(func(d Dispatch) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, d.Category)
	}))

	l.Log("scraper", "sync", nil)
	l.Log("timing", "async", nil)
	l.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "scraper" || seen[1] != "timing" {
		t.Errorf("expected observer to see [scraper timing], got %v", seen)
	}
}

func TestEventLog_SinkPanicDoesNotEscape(t *testing.T) {
	l := NewEventLog(EventLogOptions{
		Sink: func(string, string, map[string]any) { panic("boom") },
	})
	defer l.Shutdown()

	l.Log("scraper", "survives", nil)
}

func TestEventLog_TickerDrains(t *testing.T) {
	rec := &recordingSink{}
	l := NewEventLog(EventLogOptions{
		BufferSize:    100,
		FlushInterval: 10 * time.Millisecond,
		Sink:          rec.sink,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Shutdown()

	l.Log("polling", "tick", nil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(rec.all()) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected ticker to drain the buffered event")
}

func TestEventLog_ShutdownDrainsAndIsRepeatable(t *testing.T) {
	rec := &recordingSink{}
	l := NewEventLog(EventLogOptions{Sink: rec.sink})
	l.Start(context.Background())

	l.SetSessionContext("s1", models.SessionContext{UserID: "u1"})
	l.Log("batch", "pending", nil)
	l.Shutdown()

	if len(rec.all()) != 1 {
		t.Fatalf("expected final drain to dispatch 1 event, got %d", len(rec.all()))
	}
	if _, ok := l.SessionContext("s1"); ok {
		t.Error("expected context map cleared on shutdown")
	}

	l.Shutdown()

	// After shutdown buffered categories dispatch immediately.
	l.Log("timing", "late", nil)
	if len(rec.all()) != 2 {
		t.Errorf("expected late event dispatched immediately, got %d events", len(rec.all()))
	}
}

func TestHelpers_Catalog(t *testing.T) {
	tests := []struct {
		name     string
		call     func(l *EventLog)
		category string
		message  string
		async    bool
	}{
		{"cache", func(l *EventLog) { l.Cache("get", "jobs:sydney", nil) }, "cache", "[CACHE] get: jobs:sydney", false},
		{"scraper", func(l *EventLog) { l.Scraper("fetch", "https://a.io", nil) }, "scraper", "[SCRAPER] fetch: https://a.io", false},
		{"service", func(l *EventLog) { l.Service("mailer", "sent", nil) }, "service", "[SERVICE:mailer] sent", false},
		{"buffer", func(l *EventLog) { l.Buffer("grow", 8, nil) }, "buffer", "[BUFFER] grow (size=8)", true},
		{"error", func(l *EventLog) { l.Error("parse", errors.New("bad html"), nil) }, "error", "[ERROR] parse: bad html", false},
		{"error nil", func(l *EventLog) { l.Error("parse", nil, nil) }, "error", "[ERROR] parse: unknown error", false},
		{"timing", func(l *EventLog) { l.Timing("render", 1500*time.Millisecond, nil) }, "timing", "[TIMING] render took 1500ms", true},
		{"win", func(l *EventLog) { l.Win("42 jobs", nil) }, "win", "[WIN] 42 jobs", false},
		{"retry", func(l *EventLog) { l.Retry("fetch", 2, 5, nil) }, "retry", "[RETRY] fetch attempt 2/5", false},
		{"queue", func(l *EventLog) { l.Queue("push", 12, nil) }, "queue", "[QUEUE] push (length=12)", true},
		{"parallel", func(l *EventLog) { l.Parallel("fan out", 4, nil) }, "parallel", "[PARALLEL] fan out (4 tasks)", true},
		{"batch", func(l *EventLog) { l.Batch("insert", 50, nil) }, "batch", "[BATCH] insert (50 items)", true},
		{"domain", func(l *EventLog) { l.DomainProfile("seek.com.au", "updated", nil) }, "domainProfile", "[DOMAIN:seek.com.au] updated", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, rec := newTestEventLog(t, 10)
			tt.call(l)

			if tt.async {
				if len(rec.all()) != 0 || l.BufferLen() != 1 {
					t.Fatalf("expected buffered event, dispatched=%d buffered=%d", len(rec.all()), l.BufferLen())
				}
				l.Flush()
			}
			events := rec.all()
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			if events[0].category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, events[0].category)
			}
			if events[0].message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, events[0].message)
			}
		})
	}
}

func TestHelpers_CallerOptionsOverrideDefault(t *testing.T) {
	l, rec := newTestEventLog(t, 10)

	l.Queue("push", 1, nil, WithAsync(false))
	if len(rec.all()) != 1 {
		t.Error("expected WithAsync(false) to dispatch a queue event immediately")
	}

	l.Win("later", nil, WithAsync(true))
	if l.BufferLen() != 1 {
		t.Error("expected WithAsync(true) to buffer a win event")
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.seek.com.au/jobs?q=go", "seek.com.au"},
		{"http://foo.example.com:8080/careers", "foo.example.com"},
		{"www.indeed.com/viewjob", "indeed.com"},
		{"example.org/path/to", "example.org"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractDomain(tt.in); got != tt.want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoggerSinkDoesNotPanic(t *testing.T) {
	sink := LoggerSink(logging.Discard())
	sink("error", "failed", map[string]any{"token": "secret"})
	sink("retry", "again", nil)
	sink("timing", "took", nil)
	sink("win", "done", nil)
}
