// Package logging constructs the gateway's zerolog logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger tagged with the service name.
// In development the logger writes human-readable console output; everywhere
// else it writes JSON to stdout. Unknown levels fall back to info.
func New(serviceName, level, environment string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if environment == "development" {
		writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(writer)
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.Level(lvl).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}
