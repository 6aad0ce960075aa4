package aflib

import (
	"time"
)

// NewNopLogger returns a Logger that discards all messages. Useful for
// tests and for firmware that has not wired logging yet.
func NewNopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(msg string, kv ...any) {}
func (nopLogger) Info(msg string, kv ...any)  {}
func (nopLogger) Warn(msg string, kv ...any)  {}
func (nopLogger) Error(msg string, kv ...any) {}

// Clock abstracts time for code that wants deterministic tests.
type Clock interface {
	Now() time.Time
}

// NewSystemClock returns a Clock that uses time.Now().
func NewSystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
