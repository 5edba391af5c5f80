// Package logging configures the structured JSON logger shared by the daemon
// and its channels.
//
// Logs go to stderr so that stdout stays free for the shell variable block
// the daemon prints for scripts to eval.
//
//	logger := logging.SetupLogger("info", os.Stderr)
//	logger.Info("command received", "request_id", id, "component", "simpleipc")
package logging

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// SetupLogger creates a JSON logger writing to w at the given level.
// The level accepts "debug", "info", "warn", "error" (case-insensitive);
// anything else means "info". The logger is also installed as slog's default.
func SetupLogger(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(level),
		AddSource:   true,
		ReplaceAttr: shortenSource,
	}

	logger := slog.New(slog.NewJSONHandler(w, opts))
	slog.SetDefault(logger)

	return logger
}

// shortenSource trims source paths to start at internal/.
func shortenSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	source, ok := a.Value.Any().(*slog.Source)
	if !ok {
		return a
	}
	if idx := strings.Index(source.File, "internal/"); idx != -1 {
		source.File = source.File[idx:]
	} else {
		source.File = filepath.Base(source.File)
	}
	if idx := strings.Index(source.Function, "internal/"); idx != -1 {
		source.Function = source.Function[idx:]
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger tagged with a component attribute.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}
