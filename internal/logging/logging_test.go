package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fieldwork/tasksync/internal/config"
)

func TestFor(t *testing.T) {
	var buf bytes.Buffer
	For(&buf, "sync").Printf("Synced task: %s", "t-1")

	line := buf.String()
	if !strings.HasPrefix(line, "[sync] ") {
		t.Errorf("Expected [sync] prefix, got %q", line)
	}
	if !strings.Contains(line, "Synced task: t-1") {
		t.Errorf("Expected message in %q", line)
	}
}

func TestNew_Stderr(t *testing.T) {
	w, err := New(config.LogConfig{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close on stderr writer failed: %v", err)
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tsync.log")

	w, err := New(config.LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	For(w, "daemon").Println("Daemon started")
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "[daemon] ") || !strings.Contains(string(data), "Daemon started") {
		t.Errorf("Unexpected log contents: %q", data)
	}
}
