// Package common provides shared logging setup and build metadata for the
// deployer binaries.
package common

import (
	"log/slog"
	"os"
)

// Version is the service version, overridable at build time with
// -ldflags "-X github.com/fhelab/hpvs-deployer/common.Version=...".
var Version = "dev"

// PackageName tags log output and metrics with the service identity.
const PackageName = "hpvs-deployer"

// LoggingOpts configures the process-wide logger.
type LoggingOpts struct {
	// Debug lowers the log level to debug.
	Debug bool

	// JSON switches from text to JSON output.
	JSON bool

	// Service is added as a 'service' tag to all log messages.
	Service string

	// Version is added as a 'version' tag to all log messages.
	Version string
}

// SetupLogger creates a slog logger writing to stderr according to opts.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	return logger
}
