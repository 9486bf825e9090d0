package testutil

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/johnrirwin/agenda/internal/logging"
)

// NullLogger returns a logger that discards everything below error level.
func NullLogger() *logging.Logger {
	return logging.New(logging.LevelError)
}

// ObservedLogger returns a logger recording every entry at debug level and
// above so tests can assert on what was logged.
func ObservedLogger() (*logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logging.NewFromZap(zap.New(core)), logs
}
