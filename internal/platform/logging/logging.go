// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup installs the global logger at level (debug, info, warn, error; unknown names mean info).
// dev switches to human-readable console output with caller information.
func Setup(level string, dev bool) zerolog.Logger {
	return setup(os.Stderr, level, dev)
}

func setup(w io.Writer, level string, dev bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
			With().Caller().Logger()
	}
	log.Logger = logger
	return logger
}
