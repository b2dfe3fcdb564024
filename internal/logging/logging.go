// Package logging builds the per-Agent diagnostic logger (§4.9 "no
// global mutable state is exposed to callers beyond per-Agent
// structures"): every Agent owns the *slog.Logger Configure returns and
// threads it explicitly through its own components (dispatcher,
// resolver, pool). Configure never touches slog's process-wide
// default, so two Agents built from two different Configs in the same
// process never clobber each other's handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config describes one Agent's logging setup, normally populated from
// its YAML config's `logging:` section (internal/config).
type Config struct {
	Level            string
	Structured       bool
	StructuredFormat string
	IncludePID       bool
	// Component tags every record emitted by this logger (slog attr
	// "component"), so output from several Agents sharing a process
	// can still be told apart once interleaved on stderr.
	Component   string
	ExtraFields map[string]string
}

// Configure builds a scoped *slog.Logger for one Agent. It never calls
// slog.SetDefault: the returned logger is the only handle to this
// configuration, matching the one-Agent-one-logger rule.
func Configure(cfg Config) *slog.Logger {
	level := parseLevel(cfg.Level)
	var handler slog.Handler
	out := io.Writer(os.Stderr)

	attrs := make([]slog.Attr, 0, len(cfg.ExtraFields)+2)
	if cfg.Component != "" {
		attrs = append(attrs, slog.String("component", cfg.Component))
	}
	for k, v := range cfg.ExtraFields {
		attrs = append(attrs, slog.String(k, v))
	}
	if cfg.IncludePID {
		attrs = append(attrs, slog.Int("pid", os.Getpid()))
	}

	if cfg.Structured && strings.ToLower(cfg.StructuredFormat) == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}

	if len(attrs) > 0 {
		handler = handler.WithAttrs(attrs)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
