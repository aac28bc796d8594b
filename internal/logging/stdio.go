package logging

import (
	"log/slog"
)

// SetupStdioMode initializes logging for the daemon's stdio transport mode.
// The line-delimited protocol (spec.md §6) uses stdout exclusively for
// request/response frames, so this mode logs only to file, never to
// stdout/stderr: any stray write to either stream would corrupt the
// protocol stream. Always runs at debug level for full diagnostics.
func SetupStdioMode() (func(), error) {
	cfg := Config{
		Level:         "debug",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	slog.Info("stdio mode logging initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level),
		slog.Bool("stderr_disabled", true))

	return cleanup, nil
}

// SetupStdioModeWithLevel initializes stdio-safe logging at a specific level.
func SetupStdioModeWithLevel(level string) (func(), error) {
	cfg := Config{
		Level:         level,
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	return cleanup, nil
}
