// Package logger wraps zerolog with the two knobs the rest of the
// fleet actually needs: level and whether to pretty-print for a human
// watching a terminal instead of a log aggregator.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the logger's verbosity and output format.
type Config struct {
	// Level is a zerolog level name: "debug", "info", "warn", "error".
	// Defaults to "info" when empty or unrecognized.
	Level string
	// Pretty switches from JSON lines to zerolog's ConsoleWriter, the
	// toggle meant for local development.
	Pretty bool
}

// New builds a zerolog.Logger writing to stderr with the given Config.
func New(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)

	var writer = os.Stderr
	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()

	if cfg.Pretty {
		console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = zerolog.New(console).Level(level).With().Timestamp().Logger()
	}

	return logger
}

func parseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}
