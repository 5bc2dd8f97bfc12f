// Package rlog wires every package in this module to a shared btclog
// backend, following lnd's own convention of one named subsystem logger
// per package (srvrLog, peerLog, discLog, ...).
package rlog

import (
	"os"

	"github.com/btcsuite/btclog"
)

// backendLog is the single process-wide backend; subsystem loggers are thin
// views over it so log level can be tuned per subsystem at runtime.
var backendLog = btclog.NewBackend(os.Stdout)

// NewSubsystem returns a leveled logger tagged with the given subsystem,
// defaulting to InfoLvl until adjusted by SetLevel.
func NewSubsystem(tag string) btclog.Logger {
	logger := backendLog.Logger(tag)
	logger.SetLevel(btclog.LevelInfo)
	return logger
}

// SetLevel adjusts the level of a previously created subsystem logger.
func SetLevel(logger btclog.Logger, level btclog.Level) {
	logger.SetLevel(level)
}
