package relayer

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger builds the service logger. Unknown levels fall back to info.
func NewLogger(level string) zerolog.Logger {
	parsed, parseErr := zerolog.ParseLevel(level)
	if parseErr != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(parsed).With().Timestamp().Str("app", "raincloud").Logger()
	log.Logger = logger
	return logger
}
