package app_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/lorelens/internal/app"
	"github.com/MrWong99/lorelens/internal/config"
)

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerWithWriters(t *testing.T) {
	t.Parallel()
	var stderr, file bytes.Buffer
	lv := new(slog.LevelVar)
	logger := app.NewLoggerWithWriters(&stderr, &file, lv)

	logger.Debug("hidden")
	lv.Set(slog.LevelDebug)
	logger.Debug("session: started", "game", "Chrono Trigger")

	if strings.Contains(stderr.String(), "hidden") {
		t.Error("debug record logged below the level")
	}
	if !strings.Contains(stderr.String(), "game=\"Chrono Trigger\"") {
		t.Errorf("stderr = %q", stderr.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(file.Bytes(), &rec); err != nil {
		t.Fatalf("file output is not one JSON record: %v", err)
	}
	if rec["msg"] != "session: started" || rec["game"] != "Chrono Trigger" {
		t.Errorf("json record = %v", rec)
	}
}

func TestNewLogger_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "lorelens.log")
	var stderr bytes.Buffer
	logger, cleanup, err := app.NewLogger(&stderr, path, new(slog.LevelVar))
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("hello")
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file = %q", data)
	}

	if _, _, err := app.NewLogger(&stderr, filepath.Join(t.TempDir(), "no", "such", "dir.log"), new(slog.LevelVar)); err == nil {
		t.Error("expected error for unwritable log file")
	}
}
