// Package logging sets up the process-wide slog logger, following the
// teacher's commands/logger.go: a TextHandler on stderr, gated to debug
// level by the DEBUG or VERBOSE environment variables.
package logging

import (
	"log/slog"
	"os"
)

// New returns a logger at slog.LevelDebug if DEBUG or VERBOSE is set in
// the environment, slog.LevelInfo otherwise.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" || os.Getenv("VERBOSE") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
