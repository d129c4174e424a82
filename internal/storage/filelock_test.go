package storage

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDayFileLock_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console-logs-2025-01-15.json")

	first, err := lockDayFile(path)
	if err != nil {
		t.Fatalf("locking: %v", err)
	}

	acquired := make(chan *dayFileLock, 1)
	go func() {
		second, err := lockDayFile(path)
		if err != nil {
			t.Errorf("second lock: %v", err)
			close(acquired)
			return
		}
		acquired <- second
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(100 * time.Millisecond):
	}

	if err := first.Release(); err != nil {
		t.Fatalf("releasing: %v", err)
	}
	select {
	case second := <-acquired:
		if second != nil {
			_ = second.Release()
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second lock not acquired after release")
	}
}

func TestDayFileLock_ReleaseTwice(t *testing.T) {
	l, err := lockDayFile(filepath.Join(t.TempDir(), "scraping-sessions-2025-01-15.json"))
	if err != nil {
		t.Fatalf("locking: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second release should be a no-op, got %v", err)
	}
}

func TestDayFileLock_ErrorNamesDayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "console-logs-2025-01-15.json")
	_, err := lockDayFile(path)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
	if !strings.Contains(err.Error(), "console-logs-2025-01-15.json") {
		t.Errorf("error should name the day file: %v", err)
	}
}
