package aflib

import (
	"github.com/sirupsen/logrus"
)

// Logger is the logging interface the SDK writes to. Firmware can provide
// its own implementation; NewLogrusLogger adapts a logrus logger.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Debug levels for SetDebugLevel, mirroring the hub's LOG_DEBUG settings.
const (
	LogDebugOff = 0 // the default
	LogDebug1   = 1
	LogDebug2   = 2
	LogDebug3   = 3
	LogDebug4   = 4
)

// NewLogrusLogger adapts a logrus logger to the SDK Logger interface.
// Passing nil uses the logrus standard logger.
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &logrusLogger{l: l}
}

type logrusLogger struct {
	l *logrus.Logger
}

func (a *logrusLogger) Debug(msg string, kv ...any) { a.entry(kv).Debug(msg) }
func (a *logrusLogger) Info(msg string, kv ...any)  { a.entry(kv).Info(msg) }
func (a *logrusLogger) Warn(msg string, kv ...any)  { a.entry(kv).Warn(msg) }
func (a *logrusLogger) Error(msg string, kv ...any) { a.entry(kv).Error(msg) }

func (a *logrusLogger) entry(kv []any) *logrus.Entry {
	if len(kv) == 0 {
		return logrus.NewEntry(a.l)
	}
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return a.l.WithFields(fields)
}

// SetDebugLevel maps a hub debug level (LogDebugOff..LogDebug4) onto the
// underlying logrus level.
func (a *logrusLogger) SetDebugLevel(level int) {
	switch {
	case level <= LogDebugOff:
		a.l.SetLevel(logrus.InfoLevel)
	case level <= LogDebug2:
		a.l.SetLevel(logrus.DebugLevel)
	default:
		a.l.SetLevel(logrus.TraceLevel)
	}
}
