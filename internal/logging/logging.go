// Package logging configures the process-wide zerolog logger.
// All pipeline progress goes to stderr; stdout stays free for
// command output such as dry-run reports and diffs.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	JSONOutput bool
	Output     io.Writer // defaults to stderr
}

// Init initializes the global logger.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with a component field.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithService creates a child logger tagged with a service name.
func WithService(service string) zerolog.Logger {
	return Logger.With().Str("service", service).Logger()
}

// Failure logs a pipeline failure with the standard
// (service, artifact, phase, cause) fields.
func Failure(service, artifact, phase string, err error) {
	Logger.Error().
		Str("service", service).
		Str("artifact", artifact).
		Str("phase", phase).
		Err(err).
		Msg("pipeline failure")
}
