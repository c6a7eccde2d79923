// Package logging builds the zerolog logger shared by every runbridge component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// EnvLevel overrides the configured log level.
const EnvLevel = "RUNBRIDGE_LOG_LEVEL"

// Config holds logger configuration.
type Config struct {
	// Level is one of debug, info, warn, error (default info).
	Level string
	// JSON forces JSON output even on a terminal.
	JSON bool
}

// New returns a logger writing to w. A terminal gets the human console
// writer unless JSON is set.
func New(cfg Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	out := w
	if !cfg.JSON && isTerminal(w) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).
		Level(ParseLevel(levelFromEnv(cfg.Level))).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

func levelFromEnv(configured string) string {
	if v := os.Getenv(EnvLevel); v != "" {
		return v
	}
	return configured
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
