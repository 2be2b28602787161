package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global logger. Workers run with json=true so the
// output can be shipped as-is; the CLI keeps the console writer.
func Init(verbose, json bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)

	var output io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
		NoColor:    false,
	}
	if json {
		output = os.Stderr
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// WithComponent creates a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// ForJob tags a component logger with the job it is working on.
func ForJob(logger zerolog.Logger, jobID, kind string) zerolog.Logger {
	return logger.With().Str("job_id", jobID).Str("kind", kind).Logger()
}
