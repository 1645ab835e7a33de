package logger

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultLogger is the default Logger implementation, backed by logrus
// rather than a hand-rolled formatter — matching how the rest of the
// dependency pool (logrus appears directly in several sibling services)
// does structured logging.
type DefaultLogger struct {
	mu    sync.Mutex
	entry *logrus.Entry
	level LogLevel
}

// NewDefaultLogger creates a new default logger at the given level.
// format is "json" or "text" and selects logrus's formatter.
func NewDefaultLogger(level LogLevel, format string) *DefaultLogger {
	l := logrus.New()
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetLevel(toLogrusLevel(level))

	return &DefaultLogger{
		entry: logrus.NewEntry(l),
		level: level,
	}
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func (l *DefaultLogger) withFields(fields []Field) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	data := make(logrus.Fields, len(fields))
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	return l.entry.WithFields(data)
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, fields ...Field) { l.withFields(fields).Debug(msg) }

// Info logs an info message
func (l *DefaultLogger) Info(msg string, fields ...Field) { l.withFields(fields).Info(msg) }

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, fields ...Field) { l.withFields(fields).Warn(msg) }

// Error logs an error message
func (l *DefaultLogger) Error(msg string, fields ...Field) { l.withFields(fields).Error(msg) }

// Fatal logs a fatal message and exits
func (l *DefaultLogger) Fatal(msg string, fields ...Field) { l.withFields(fields).Fatal(msg) }

// With creates a child logger with additional fields
func (l *DefaultLogger) With(fields ...Field) Logger {
	return &DefaultLogger{
		entry: l.withFields(fields),
		level: l.level,
	}
}

// SetLevel sets the minimum log level
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.entry.Logger.SetLevel(toLogrusLevel(level))
}

// SetOutput sets the output writer
func (l *DefaultLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entry.Logger.SetOutput(w)
}
