package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"animica.dev/core/node"
)

var logRotator *rotator.Rotator

// initLogging wires the node subsystem logger. With no log file the
// harness stays silent, which is what fixture runners want on stdout.
func initLogging(logFile, level string) error {
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	if logFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o750); err != nil {
		return fmt.Errorf("log dir: %w", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("log rotator: %w", err)
	}
	logRotator = r

	backend := slog.NewBackend(r)
	logger := backend.Logger("CORE")
	logger.SetLevel(lvl)
	node.UseLogger(logger)
	return nil
}

func closeLogging() {
	if logRotator != nil {
		_ = logRotator.Close()
	}
}
