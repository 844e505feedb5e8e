// Package logging provides structured file logging for ns.
// Logs never go to stdout: stdout is reserved for search results and
// JSON-RPC traffic. Diagnostics go to .ns/log/ns.log, mirrored to stderr
// only when debug mode is enabled.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means no file logging.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// WriteToStderr whether to also write to stderr (default: false).
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for file logging under dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		Level:     "info",
		FilePath:  filepath.Join(dataDir, "log", "ns.log"),
		MaxSizeMB: 10,
	}
}

// DebugConfig returns configuration for debug mode: verbose and mirrored
// to stderr.
func DebugConfig(dataDir string) Config {
	cfg := DefaultConfig(dataDir)
	cfg.Level = "debug"
	cfg.WriteToStderr = true
	return cfg
}

// Setup initializes file-based logging and installs the logger as the
// process default. The returned cleanup function closes the log file.
func Setup(cfg Config) (func(), error) {
	var output io.Writer = io.Discard

	var w *rotatingWriter
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		var err error
		w, err = newRotatingWriter(cfg.FilePath, cfg.MaxSizeMB)
		if err != nil {
			return nil, err
		}
		output = w
	}
	if cfg.WriteToStderr {
		if w != nil {
			output = io.MultiWriter(w, os.Stderr)
		} else {
			output = os.Stderr
		}
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	slog.SetDefault(slog.New(handler))

	cleanup := func() {
		if w != nil {
			_ = w.Close()
		}
	}
	return cleanup, nil
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
