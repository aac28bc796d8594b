package logging

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestDefaultLogDir(t *testing.T) {
	dir := DefaultLogDir()
	if dir == "" {
		t.Error("DefaultLogDir returned empty string")
	}
	if !contains(dir, ".memoryd") || !contains(dir, "logs") {
		t.Errorf("DefaultLogDir should contain .memoryd/logs, got: %s", dir)
	}
}

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	if path == "" {
		t.Error("DefaultLogPath returned empty string")
	}
	if filepath.Base(path) != "memoryd.log" {
		t.Errorf("DefaultLogPath should end with memoryd.log, got: %s", path)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.MaxSizeMB != 10 {
		t.Errorf("expected MaxSizeMB 10, got: %d", cfg.MaxSizeMB)
	}
	if cfg.MaxFiles != 5 {
		t.Errorf("expected MaxFiles 5, got: %d", cfg.MaxFiles)
	}
	if !cfg.WriteToStderr {
		t.Error("expected WriteToStderr to be true")
	}
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()
	if cfg.Level != "debug" {
		t.Errorf("expected level 'debug', got: %s", cfg.Level)
	}
}

func TestSetup(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	cfg := Config{
		Level:         "debug",
		FilePath:      logPath,
		MaxSizeMB:     1,
		MaxFiles:      3,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	if logger == nil {
		t.Error("Setup returned nil logger")
	}
	logger.Info("test message")

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("Log file was not created")
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{"info", "INFO"},
		{"INFO", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"ERROR", "ERROR"},
		{"unknown", "INFO"}, // defaults to info
	}

	for _, tc := range tests {
		level := LevelFromString(tc.input)
		if level.String() != tc.expected {
			t.Errorf("LevelFromString(%q) = %s, want %s", tc.input, level.String(), tc.expected)
		}
	}
}

func TestFindLogFile_NotFound(t *testing.T) {
	_, err := FindLogFile("/nonexistent/path/to/log.log")
	if err == nil {
		t.Error("expected error for nonexistent log file")
	}
}

func TestFindLogFile_ExplicitPath(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "explicit.log")
	if err := os.WriteFile(logPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("failed to write test log: %v", err)
	}

	found, err := FindLogFile(logPath)
	if err != nil {
		t.Fatalf("FindLogFile failed: %v", err)
	}
	if found != logPath {
		t.Errorf("expected %s, got %s", logPath, found)
	}
}

func TestRotatingWriter_ImmediateSync(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "rotate.log")

	w, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("unexpected log contents: %q", data)
	}
}

func TestRotatingWriter_DisableImmediateSync(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "rotate.log")

	w, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	w.SetImmediateSync(false)
	if _, err := w.Write([]byte("buffered\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
}

func TestRotatingWriter_Rotation(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "rotate.log")

	w, err := NewRotatingWriter(logPath, 0, 2) // maxSize 0 forces rotation on first write
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 3; i++ {
		if _, err := w.Write([]byte("line\n")); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("expected rotated file %s.1 to exist: %v", logPath, err)
	}
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "rotate.log")

	w, err := NewRotatingWriter(logPath, 0, 1)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 4; i++ {
		if _, err := w.Write([]byte("line\n")); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(logPath + ".2"); err == nil {
		t.Error("expected rotated file beyond maxFiles to be pruned")
	}
}

func TestRotatingWriter_CloseSuccess(t *testing.T) {
	tmpDir := t.TempDir()
	w, err := NewRotatingWriter(filepath.Join(tmpDir, "close.log"), 1, 1)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestSetupStdioMode(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cleanup, err := SetupStdioMode()
	if err != nil {
		t.Fatalf("SetupStdioMode failed: %v", err)
	}
	defer cleanup()

	if _, err := os.Stat(DefaultLogPath()); err != nil {
		t.Errorf("expected log file to exist: %v", err)
	}
}

func TestSetupStdioModeWithLevel(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cleanup, err := SetupStdioModeWithLevel("warn")
	if err != nil {
		t.Fatalf("SetupStdioModeWithLevel failed: %v", err)
	}
	defer cleanup()
}

func TestEnsureLogDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if err := EnsureLogDir(); err != nil {
		t.Fatalf("EnsureLogDir failed: %v", err)
	}
	if _, err := os.Stat(DefaultLogDir()); err != nil {
		t.Errorf("expected log dir to exist: %v", err)
	}
}

func TestViewer_ParseLine_ValidJSON(t *testing.T) {
	v := NewViewer(ViewerConfig{}, os.Stdout)
	line := `{"time":"2024-01-01T00:00:00Z","level":"INFO","msg":"hello","extra":"x"}`
	entry := v.parseLine(line)

	if !entry.IsValid {
		t.Error("expected entry to be valid")
	}
	if entry.Msg != "hello" {
		t.Errorf("expected msg 'hello', got %q", entry.Msg)
	}
	if entry.Attrs["extra"] != "x" {
		t.Errorf("expected extra attr 'x', got %v", entry.Attrs["extra"])
	}
}

func TestViewer_ParseLine_InvalidJSON(t *testing.T) {
	v := NewViewer(ViewerConfig{}, os.Stdout)
	entry := v.parseLine("not json")
	if entry.IsValid {
		t.Error("expected entry to be invalid")
	}
	if entry.Raw != "not json" {
		t.Errorf("expected raw line preserved, got %q", entry.Raw)
	}
}

func TestViewer_MatchesFilter_LevelFilter(t *testing.T) {
	v := NewViewer(ViewerConfig{Level: "warn"}, os.Stdout)

	info := v.parseLine(`{"time":"2024-01-01T00:00:00Z","level":"info","msg":"x"}`)
	if v.matchesFilter(info) {
		t.Error("info entry should not match warn filter")
	}

	errEntry := v.parseLine(`{"time":"2024-01-01T00:00:00Z","level":"error","msg":"x"}`)
	if !v.matchesFilter(errEntry) {
		t.Error("error entry should match warn filter")
	}
}

func TestViewer_MatchesFilter_PatternFilter(t *testing.T) {
	v := NewViewer(ViewerConfig{Pattern: regexp.MustCompile("boom")}, os.Stdout)

	match := v.parseLine(`{"msg":"boom"}`)
	if !v.matchesFilter(match) {
		t.Error("expected pattern match")
	}

	noMatch := v.parseLine(`{"msg":"quiet"}`)
	if v.matchesFilter(noMatch) {
		t.Error("expected no pattern match")
	}
}

func TestViewer_FormatEntry_ValidEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, os.Stdout)
	entry := LogEntry{
		Time:    time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Level:   "info",
		Msg:     "hello",
		Attrs:   map[string]interface{}{},
		IsValid: true,
	}
	out := v.FormatEntry(entry)
	if !strings.Contains(out, "hello") {
		t.Errorf("expected formatted entry to contain message, got %q", out)
	}
}

func TestViewer_FormatEntry_InvalidEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{}, os.Stdout)
	entry := LogEntry{Raw: "raw line", IsValid: false}
	if v.FormatEntry(entry) != "raw line" {
		t.Errorf("expected raw line passthrough, got %q", v.FormatEntry(entry))
	}
}

func TestViewer_FormatLevel_AllLevels(t *testing.T) {
	v := NewViewer(ViewerConfig{}, os.Stdout)
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		if v.formatLevel(level) == "" {
			t.Errorf("formatLevel(%q) returned empty string", level)
		}
	}
}

func TestViewer_Tail(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "tail.log")
	content := `{"time":"2024-01-01T00:00:00Z","level":"info","msg":"one"}
{"time":"2024-01-01T00:00:01Z","level":"info","msg":"two"}
{"time":"2024-01-01T00:00:02Z","level":"info","msg":"three"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write log: %v", err)
	}

	v := NewViewer(ViewerConfig{}, os.Stdout)
	entries, err := v.Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Msg != "two" || entries[1].Msg != "three" {
		t.Errorf("unexpected tail order: %+v", entries)
	}
}

func TestViewer_Tail_WithLevelFilter(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "tail.log")
	content := `{"time":"2024-01-01T00:00:00Z","level":"debug","msg":"one"}
{"time":"2024-01-01T00:00:01Z","level":"error","msg":"two"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write log: %v", err)
	}

	v := NewViewer(ViewerConfig{Level: "error"}, os.Stdout)
	entries, err := v.Tail(path, 10)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Msg != "two" {
		t.Errorf("expected only error entry, got %+v", entries)
	}
}

func TestViewer_Tail_NonexistentFile(t *testing.T) {
	v := NewViewer(ViewerConfig{}, os.Stdout)
	if _, err := v.Tail("/nonexistent/log.log", 10); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestViewer_Follow_StopsOnCancel(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "follow.log")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("failed to write log: %v", err)
	}

	v := NewViewer(ViewerConfig{}, os.Stdout)
	ctx, cancel := context.WithCancel(context.Background())
	entries := make(chan LogEntry)

	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected nil error on cancel, got %v", err)
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
