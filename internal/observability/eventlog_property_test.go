package observability

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/scrapewatch/pkg/models"
	"pgregory.net/rapid"
)

// =============================================================================
// Property 1: Synchronous Dispatch Preserves Call Order
// =============================================================================

// Feature: event-log, Property 1: Synchronous Dispatch Preserves Call Order
// *For any* sequence of Log calls on non-buffered categories, the sink SHALL
// receive the events in exactly the order the calls were made.
func TestProperty1_SyncDispatchPreservesOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rec := &recordingSink{}
		l := NewEventLog(EventLogOptions{FlushInterval: time.Hour, Sink: rec.sink})
		defer l.Shutdown()

		categories := []string{"scraper", "cache", "service", "error", "win", "retry"}
		n := rapid.IntRange(1, 50).Draw(rt, "n")
		for i := 0; i < n; i++ {
			category := rapid.SampledFrom(categories).Draw(rt, fmt.Sprintf("category_%d", i))
			l.Log(category, fmt.Sprintf("msg-%d", i), nil)
		}

		events := rec.all()
		if len(events) != n {
			rt.Fatalf("dispatched %d events, want %d", len(events), n)
		}
		for i, e := range events {
			if e.message != fmt.Sprintf("msg-%d", i) {
				rt.Fatalf("event %d = %q, want msg-%d", i, e.message, i)
			}
		}
	})
}

// =============================================================================
// Property 2: Buffer Never Exceeds Capacity
// =============================================================================

// Feature: event-log, Property 2: Buffer Never Exceeds Capacity
// *For any* capacity and any interleaving of buffered and immediate events,
// the buffer length SHALL never exceed capacity after a Log call returns, and
// every buffered event SHALL eventually reach the sink in append order.
func TestProperty2_BufferNeverExceedsCapacity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rec := &recordingSink{}
		capacity := rapid.IntRange(1, 20).Draw(rt, "capacity")
		l := NewEventLog(EventLogOptions{BufferSize: capacity, FlushInterval: time.Hour, Sink: rec.sink})

		n := rapid.IntRange(0, 200).Draw(rt, "n")
		buffered := 0
		for i := 0; i < n; i++ {
			async := rapid.Bool().Draw(rt, fmt.Sprintf("async_%d", i))
			category := "scraper"
			if async {
				category = "timing"
				buffered++
			}
			l.Log(category, fmt.Sprintf("%s-%d", category, i), nil)
			if got := l.BufferLen(); got > capacity {
				rt.Fatalf("buffer length %d exceeds capacity %d", got, capacity)
			}
		}
		l.Shutdown()

		var timings []string
		for _, e := range rec.all() {
			if e.category == "timing" {
				timings = append(timings, e.message)
			}
		}
		if len(timings) != buffered {
			rt.Fatalf("dispatched %d buffered events, want %d", len(timings), buffered)
		}
		last := -1
		for _, m := range timings {
			var idx int
			if _, err := fmt.Sscanf(m, "timing-%d", &idx); err != nil {
				rt.Fatalf("unexpected message %q", m)
			}
			if idx <= last {
				rt.Fatalf("buffered events out of order: %d after %d", idx, last)
			}
			last = idx
		}
	})
}

// =============================================================================
// Property 3: Context Prefix Order
// =============================================================================

// Feature: event-log, Property 3: Context Prefix Order
// *For any* stored session context, a Log call correlated with that session
// SHALL produce a message starting with the session suffix, user suffix,
// domain and step in that fixed order.
func TestProperty3_ContextPrefixOrder(t *testing.T) {
	ident := rapid.StringMatching(`[a-z0-9]{1,16}`)
	rapid.Check(t, func(rt *rapid.T) {
		rec := &recordingSink{}
		l := NewEventLog(EventLogOptions{FlushInterval: time.Hour, Sink: rec.sink})
		defer l.Shutdown()

		sessionID := ident.Draw(rt, "sessionID")
		userID := ident.Draw(rt, "userID")
		domain := ident.Draw(rt, "domain") + ".com"
		step := ident.Draw(rt, "step")

		l.SetSessionContext(sessionID, models.SessionContext{UserID: userID, Domain: domain, Step: step})
		l.Log("scraper", "body", nil, WithSession(sessionID))

		want := fmt.Sprintf("[s:%s|u:%s|%s|%s] body", lastN(sessionID, 4), lastN(userID, 8), domain, step)
		got := rec.all()[0].message
		if got != want {
			rt.Fatalf("message = %q, want %q", got, want)
		}
		if !strings.HasSuffix(got, "] body") {
			rt.Fatalf("message %q does not end with the original text", got)
		}
	})
}
