package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/remoteds/hostingctl/internal/config"
)

// NewLogger builds the CLI logger. Output goes to stderr so step progress on
// stdout stays machine-readable, and the console writer keeps it human
// friendly. Command text and secret values are never logged by callers; only
// step names, hosts and durations appear here.
func NewLogger(cfg *config.Config) zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: cfg.NoColor}

	logger := zerolog.New(writer).With().
		Timestamp().
		Str("service", "hostingctl").
		Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
