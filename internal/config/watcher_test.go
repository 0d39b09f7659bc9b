package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/lorelens/internal/config"
	"github.com/MrWong99/lorelens/internal/watch"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

func TestWatcher_ReloadsConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "lorelens.yaml")
	writeFile(t, path, "server:\n  log_level: info\n")

	changed := make(chan config.ConfigDiff, 1)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		changed <- config.Diff(old, new)
	}, watch.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if w.Current().Server.LogLevel != config.LogInfo {
		t.Fatalf("initial log level = %q", w.Current().Server.LogLevel)
	}

	// An invalid edit is ignored.
	writeFile(t, path, "server:\n  log_level: bananas\n")
	later := time.Now().Add(time.Second)
	_ = os.Chtimes(path, later, later)
	time.Sleep(100 * time.Millisecond)
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Fatal("invalid config replaced the current one")
	}

	writeFile(t, path, "server:\n  log_level: debug\n")
	later = later.Add(time.Second)
	_ = os.Chtimes(path, later, later)

	select {
	case d := <-changed:
		if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
			t.Errorf("diff = %+v, want log level change", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
}
