package logger

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type contextKey string

// Context keys understood by WithContext
const (
	RequestIDKey contextKey = "request_id"
	IdentityKey  contextKey = "identity"
)

// Logger wraps logrus.Logger with ledger-specific helpers
type Logger struct {
	*logrus.Logger
}

// New creates a new logger instance writing JSON to stdout
func New(level string) *Logger {
	return NewWithOutput(level, os.Stdout)
}

// NewWithOutput creates a logger writing to the given destination
func NewWithOutput(level string, out io.Writer) *Logger {
	log := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(out)

	return &Logger{Logger: log}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	l := NewWithOutput("panic", io.Discard)
	return l
}

// WithComponent creates a new logger entry with component name field
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.Logger.WithField("component", component)
}

// WithIdentity creates a new logger entry with the caller identity
func (l *Logger) WithIdentity(identity string) *logrus.Entry {
	return l.Logger.WithField("identity", identity)
}

// WithContext creates a logger entry carrying request-scoped fields
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithFields(logrus.Fields{})

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	if identity, ok := ctx.Value(IdentityKey).(string); ok && identity != "" {
		entry = entry.WithField("identity", identity)
	}

	return entry
}

// Transaction logs a committed ledger transaction
func (l *Logger) Transaction(ctx context.Context, operation, actor string, events int, durationMs int64) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"ledger":      true,
		"operation":   operation,
		"actor":       actor,
		"events":      events,
		"duration_ms": durationMs,
	}).Info("Ledger transaction committed")
}

// Denied logs a rejected ledger operation with its error kind
func (l *Logger) Denied(ctx context.Context, operation, actor, kind string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"ledger":    true,
		"operation": operation,
		"actor":     actor,
		"kind":      kind,
	}).WithError(err)

	if kind == "internal" {
		entry.Error("Ledger transaction failed")
		return
	}
	entry.Warn("Ledger transaction rejected")
}

// Security logs security-related events such as failed token validation
func (l *Logger) Security(event string, identity string, details map[string]interface{}) {
	l.Logger.WithFields(logrus.Fields{
		"security": true,
		"event":    event,
		"identity": identity,
		"details":  details,
	}).Warn("Security event")
}

// HTTPRequest logs HTTP request events
func (l *Logger) HTTPRequest(ctx context.Context, method, path, clientIP string, statusCode int, duration int64) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"http_request": true,
		"method":       method,
		"path":         path,
		"client_ip":    clientIP,
		"status_code":  statusCode,
		"duration_ms":  duration,
	})

	if statusCode >= 400 {
		entry.Warn("HTTP request completed with error")
	} else {
		entry.Info("HTTP request completed")
	}
}
