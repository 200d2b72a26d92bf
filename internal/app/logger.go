package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var levels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// NewLogger builds the helper's logger. Output goes to w, which the CLI sets
// to stderr so command output on stdout stays parseable.
// Supported levels: debug, info, warn, error.
// Supported formats: text (default), json.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	return slog.New(handler).With("component", "cherry-pick-helper"), nil
}

func parseLevel(level string) (slog.Level, error) {
	lvl, ok := levels[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		return 0, fmt.Errorf("unsupported log level %q", level)
	}
	return lvl, nil
}
