package cliconfig

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger = zerolog.New(out).With().Timestamp().Str("component", "scanship").Logger()
}

// Logger returns the CLI bootstrap logger. The agent itself logs through
// the pkg/log adapter wrapped around this same logger.
func Logger() zerolog.Logger {
	return logger
}
