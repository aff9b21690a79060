package config

import (
	"io"

	"github.com/rs/zerolog"
)

// NewLogger builds the run logger. The console writer is the default, "json" emits one object per line.
// An invalid level is reported and replaced by info.
func NewLogger(cfg *Config, out io.Writer) zerolog.Logger {
	var writer io.Writer = zerolog.ConsoleWriter{
		Out:     out,
		NoColor: false,
	}
	if cfg.LogFormat == "json" {
		writer = out
	}
	logger := zerolog.New(writer).With().Timestamp().Logger()

	level := zerolog.InfoLevel // default
	if cfg.LogLevel != "" {
		if parsedLevel, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && parsedLevel != zerolog.NoLevel {
			level = parsedLevel
		} else {
			logger.Warn().Str("invalid_level", cfg.LogLevel).Msg("Invalid log level, using default 'info'")
		}
	}

	return logger.Level(level)
}
