// Package logging initializes the global zerolog logger for the CLI.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger. The level comes from the
// SCANBATCH_LOG_LEVEL environment variable (debug, info, warn, error;
// default info); verbose forces debug regardless of the environment.
func Init(verbose bool) {
	switch os.Getenv("SCANBATCH_LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Logs go to stderr so the JSON run summary on stdout stays parseable.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
