package cli

import (
	"bytes"
	"strings"
	"testing"
)

func withVersionInfo(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := appVersion, appCommit, appDate
	t.Cleanup(func() { appVersion, appCommit, appDate = v, c, d })
	SetVersionInfo(version, commit, date)
}

// runRoot executes the root command with args and returns stdout.
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := Execute()
	return stdout.String(), err
}

func TestSetVersionInfo(t *testing.T) {
	withVersionInfo(t, "1.2.3", "abc1234", "2026-02-13")

	if appVersion != "1.2.3" || appCommit != "abc1234" || appDate != "2026-02-13" {
		t.Errorf("version info = %q %q %q", appVersion, appCommit, appDate)
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	_, err := runRoot(t, "nonexistent-command")
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected unknown command error, got %v", err)
	}
}

func TestExecute_VersionSubcommand(t *testing.T) {
	withVersionInfo(t, "test-ver", "test-commit", "test-date")

	out, err := runRoot(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"scrapewatch test-ver", "commit: test-commit", "built:  test-date"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q: %s", want, out)
		}
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range []string{"version", "ingest", "logs", "sessions", "domains", "metrics", "dashboard", "mcp"} {
		if !registered[name] {
			t.Errorf("%s command not registered on root", name)
		}
	}
}
