package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing JSON lines to w. The terminal belongs to the UI,
// so w is normally a file; a nil w discards everything.
func New(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		return zerolog.Nop()
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Str("service", "culturemap").Logger()
}

// Component tags a child logger.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// parseLevel falls back to info for empty or unknown names.
func parseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}
