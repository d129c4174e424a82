package core

import (
	"fmt"
	"testing"

	"github.com/valter-silva-au/scrapewatch/internal/logging"
	"github.com/valter-silva-au/scrapewatch/pkg/models"
	"pgregory.net/rapid"
)

// =============================================================================
// Property 4: Success Capture Targets One Session
// =============================================================================

// Feature: session-registry, Property 4: Success Capture Targets One Session
// *For any* set of sessions, capturing a success line tagged with one of them
// SHALL increment that session's success and processed counters by one and
// leave every other session unchanged.
func TestProperty4_SuccessCaptureTargetsOneSession(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		clock := newTestClock()
		r := NewSessionRegistry(RegistryOptions{Logger: logging.Discard(), Now: clock.Now})
		defer r.Close()

		n := rapid.IntRange(1, 5).Draw(rt, "sessions")
		ids := make([]string, n)
		for i := range ids {
			ids[i] = r.CreateScrapingSession(fmt.Sprintf("u%d", i), "", "q", nil).ID
			clock.Advance(1)
		}
		target := ids[rapid.IntRange(0, n-1).Draw(rt, "target")]

		before := make(map[string]models.ScrapingSession)
		for _, id := range ids {
			s, _ := r.GetSession(id)
			before[id] = *s
		}

		r.CaptureConsoleLog(CaptureInput{Level: models.LevelLog, Message: "✅ Successfully scraped", SessionID: target})

		for _, id := range ids {
			s, _ := r.GetSession(id)
			b := before[id]
			if id == target {
				if s.SuccessCount != b.SuccessCount+1 || s.ProcessedURLs != b.ProcessedURLs+1 {
					rt.Fatalf("target counters = %d/%d, want %d/%d", s.SuccessCount, s.ProcessedURLs, b.SuccessCount+1, b.ProcessedURLs+1)
				}
				continue
			}
			if s.SuccessCount != b.SuccessCount || s.ProcessedURLs != b.ProcessedURLs || len(s.Logs) != len(b.Logs) {
				rt.Fatalf("session %s changed: %+v", id, s)
			}
		}
	})
}

// =============================================================================
// Property 5: Global Log List Bounded
// =============================================================================

// Feature: session-registry, Property 5: Global Log List Bounded
// *For any* capacity, a log list already at capacity SHALL stay at capacity
// after one more capture, dropping exactly the oldest entry.
func TestProperty5_GlobalLogListBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		max := rapid.IntRange(1, 50).Draw(rt, "max")
		r := NewSessionRegistry(RegistryOptions{
			Config: models.RegistryConfig{MaxLogsInMemory: max},
			Logger: logging.Discard(),
		})
		defer r.Close()

		for i := 0; i < max; i++ {
			r.CaptureConsoleLog(CaptureInput{Message: fmt.Sprintf("m%d", i)})
		}
		full := r.GetAllLogs()
		if len(full) != max {
			rt.Fatalf("expected %d logs, got %d", max, len(full))
		}

		r.CaptureConsoleLog(CaptureInput{Message: "newest"})
		after := r.GetAllLogs()
		if len(after) != max {
			rt.Fatalf("expected list to stay at %d, got %d", max, len(after))
		}
		if after[0].Message != "newest" {
			rt.Fatalf("expected newest entry first, got %q", after[0].Message)
		}
		for _, e := range after {
			if e.ID == full[max-1].ID {
				rt.Fatalf("oldest entry %q survived", e.Message)
			}
		}
		for i := 0; i < max-1; i++ {
			if after[i+1].ID != full[i].ID {
				rt.Fatalf("entry %d shifted incorrectly", i)
			}
		}
	})
}

// =============================================================================
// Property 10: Domain Bucketing
// =============================================================================

// Feature: session-registry, Property 10: Domain Bucketing
// *For any* host, a log with that host in its url field SHALL be bucketed
// under the host, and a log with neither url nor embedded URL SHALL be
// bucketed under "general".
func TestProperty10_DomainBucketing(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		host := rapid.StringMatching(`[a-z]{1,10}(\.[a-z]{2,6}){1,3}`).Draw(rt, "host")
		path := rapid.StringMatching(`(/[a-z0-9]{0,8}){0,3}`).Draw(rt, "path")
		plain := rapid.StringMatching(`[A-Za-z ]{0,30}`).Draw(rt, "plain")

		buckets := OrganizeLogsByDomain([]models.LogEntry{
			{ID: "with-url", URL: "https://" + host + path},
			{ID: "plain", Message: plain},
		})

		b, ok := buckets[host]
		if !ok || b.Total != 1 || b.Logs[0].ID != "with-url" {
			rt.Fatalf("expected url log under %q, got %+v", host, buckets)
		}
		g, ok := buckets[DomainGeneral]
		if !ok || g.Total != 1 || g.Logs[0].ID != "plain" {
			rt.Fatalf("expected plain log under general, got %+v", buckets)
		}
	})
}
