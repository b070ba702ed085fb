// Package common holds build identity and logger setup shared by every
// gateway binary.
package common

import (
	"log/slog"
	"os"
)

type LoggingOpts struct {
	// Debug lowers the log level to debug.
	Debug bool

	// JSON selects JSON output instead of text.
	JSON bool

	// Service is added as a 'service' tag to all log lines.
	Service string

	// Version is added as a 'version' tag to all log lines.
	Version string
}

// SetupLogger builds the process-wide slog logger.
func SetupLogger(opts *LoggingOpts) (log *slog.Logger) {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	if opts.JSON {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	} else {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	}

	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}

	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}

	return log
}
