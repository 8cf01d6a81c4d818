// Package logging provides structured logging for both MCP peers.
//
// It wraps Go's standard log/slog package so server and client emit
// consistent, machine-parsable logs: JSON for production, text for
// development, level-based filtering, and default service/version fields
// on every entry.
//
// Never log credentials or full MQTT passwords; the transport layer logs
// broker URLs without userinfo.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/graybridge/mcpmqtt/config"
)

// New creates a slog.Logger from logging configuration.
//
// The component field distinguishes server and client peers sharing one
// process; version is the peer's implementation version.
func New(cfg config.LoggingConfig, component, version string) *slog.Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "mcpmqtt"),
		slog.String("component", component),
		slog.String("version", version),
	})

	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
