// Package node owns the chain bookkeeping around the consensus rules:
// the header index, fork choice, the live nullifier set, and the
// serialized admission pipeline that ties codec, verifiers, scorer,
// and difficulty controller together.
package node

import "github.com/decred/slog"

// log is the package logger. It is disabled by default; the caller
// wires a backend via UseLogger.
var log = slog.Disabled

// UseLogger sets the package logger.
func UseLogger(logger slog.Logger) {
	log = logger
}
