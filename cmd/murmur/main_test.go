package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lumichat/murmur/internal/history"
)

func runCommand(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return out.String()
}

func TestOnboardCreatesConfigAndDataDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	out := runCommand(t, "", "onboard")
	if !strings.Contains(out, "config:") {
		t.Fatalf("output=%q", out)
	}
	if _, err := os.Stat(filepath.Join(home, ".murmur", "config.json")); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".murmur", "data")); err != nil {
		t.Fatalf("data dir not created: %v", err)
	}
}

func TestStatusShowsConfiguration(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out := runCommand(t, "", "status")
	for _, want := range []string{"session timeout: 1800s", "memory capacity: 1000", "archive window:  7 days"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status missing %q in %q", want, out)
		}
	}
}

func TestChatRecordsAndArchives(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dataDir := t.TempDir()
	t.Setenv("MURMUR_DATA_DIR", dataDir)

	sessionFlag = "T1"
	defer func() { sessionFlag = "" }()

	out := runCommand(t, "我叫小明，我喜欢打篮球\n", "chat", "-s", "T1")
	if !strings.Contains(out, "session T1") {
		t.Fatalf("output=%q", out)
	}
	if !strings.Contains(out, "memory:") {
		t.Fatalf("expected memory digest in %q", out)
	}
	if !strings.Contains(out, "archived: ") {
		t.Fatalf("expected archive path in %q", out)
	}

	if _, err := os.Stat(filepath.Join(dataDir, "sessions", "T1_history.json")); err != nil {
		t.Fatalf("live transcript missing: %v", err)
	}
}

func TestHistoryCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dataDir := t.TempDir()
	t.Setenv("MURMUR_DATA_DIR", dataDir)

	store := history.NewStore(dataDir, 7)
	msg := history.Message{Timestamp: time.Date(2026, 8, 22, 9, 0, 0, 0, time.Local), Role: "user", Content: "hello there"}
	if err := store.AddMessageAndSave("H1", msg); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	out := runCommand(t, "", "history", "H1")
	if !strings.Contains(out, "hello there") {
		t.Fatalf("output=%q", out)
	}

	out = runCommand(t, "", "history", "nope")
	if !strings.Contains(out, "no history found") {
		t.Fatalf("output=%q", out)
	}
}

func TestFormatHistory(t *testing.T) {
	msgs := []history.Message{
		{Timestamp: time.Date(2026, 8, 22, 9, 0, 0, 0, time.Local), Role: "user", Content: "hi"},
		{Timestamp: time.Date(2026, 8, 22, 9, 1, 0, 0, time.Local), Role: "assistant", Content: "hello"},
	}
	got := formatHistory(msgs)
	want := "[2026-08-22 09:00:00] user: hi\n[2026-08-22 09:01:00] assistant: hello\n"
	if got != want {
		t.Fatalf("formatHistory=%q, want %q", got, want)
	}
}
