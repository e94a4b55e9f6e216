// Package logging constructs the shared zerolog logger.
//
// All log output goes to stderr: stdout belongs to the MCP stdio
// transport and a single stray line there corrupts the protocol stream.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. The level comes from
// CONTEXTSTREAM_LOG_LEVEL (default: info). When stderr is a terminal
// the output is human-readable; otherwise structured JSON.
func New() zerolog.Logger {
	var output io.Writer = os.Stderr
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
		}
	}

	return zerolog.New(output).
		Level(parseLevel(os.Getenv("CONTEXTSTREAM_LOG_LEVEL"))).
		With().
		Timestamp().
		Logger()
}

// parseLevel converts a string log level to zerolog.Level.
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "", "info":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
