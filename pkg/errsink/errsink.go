// Package errsink defines the pool's background error reporting contract
// and ships a logging-backed default implementation.
package errsink

import (
	"errors"

	"github.com/nilsbauer/connpool/pkg/logger"
	"github.com/nilsbauer/connpool/pkg/redact"
)

// ErrorSink receives errors produced by background work (the connector
// worker giving up on an approval) that have no caller to return to. Sink must not
// block and must not panic.
type ErrorSink interface {
	Sink(err error)
}

// secretError lets background code attach a secret (DSN, auth token) to an
// error without the secret ever flowing through fmt.Errorf/%w, where it
// would end up verbatim in a log line.
type secretError struct {
	err    error
	secret string
}

func (e *secretError) Error() string { return e.err.Error() }
func (e *secretError) Unwrap() error { return e.err }

// WithSecret wraps err so that, if it reaches a LoggingSink, secret is
// redacted rather than printed.
func WithSecret(err error, secret string) error {
	if err == nil {
		return nil
	}
	return &secretError{err: err, secret: secret}
}

// LoggingSink is the default ErrorSink, backed by pkg/logger.
type LoggingSink struct {
	log logger.Logger
}

// NewLoggingSink returns a LoggingSink that writes through log.
func NewLoggingSink(log logger.Logger) *LoggingSink {
	return &LoggingSink{log: log}
}

// Sink logs err at warn level, redacting any secret attached via WithSecret.
func (s *LoggingSink) Sink(err error) {
	if err == nil {
		return
	}
	fields := []logger.Field{logger.Err(err)}

	var se *secretError
	if errors.As(err, &se) && se.secret != "" {
		fields = append(fields, logger.String("secret_fingerprint", redact.Secret(se.secret)))
	}

	s.log.Warn("pool background error", fields...)
}

// NopSink discards every error. Useful for tests that don't care about
// background error reporting.
type NopSink struct{}

// Sink implements ErrorSink by doing nothing.
func (NopSink) Sink(error) {}
