// Package logging provides structured logging with trace ID support.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	// TraceIDKey is the context key for trace id.
	TraceIDKey ContextKey = "trace_id"
	// NetworkKey is the context key for the network slug.
	NetworkKey ContextKey = "network"
	// MonitorKey is the context key for the monitor name.
	MonitorKey ContextKey = "monitor"
	// ServiceKey is the context key for service name.
	ServiceKey ContextKey = "service"
)

// Logger wraps logrus.Logger with monitor-domain helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables. Defaults to "info" and "json" when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// SetOutput sets the logger output.
func (l *Logger) SetOutput(output io.Writer) {
	l.Logger.SetOutput(output)
}

// WithContext creates a new logger entry with context-carried fields.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)

	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if network := ctx.Value(NetworkKey); network != nil {
		entry = entry.WithField("network", network)
	}
	if monitor := ctx.Value(MonitorKey); monitor != nil {
		entry = entry.WithField("monitor", monitor)
	}

	return entry
}

// WithFields creates a new logger entry with custom fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError creates a new logger entry with an error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// Context helpers

// NewTraceID generates a new trace id.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace id to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace id from context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithNetwork adds a network slug to the context.
func WithNetwork(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, NetworkKey, slug)
}

// WithMonitor adds a monitor name to the context.
func WithMonitor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, MonitorKey, name)
}

// Monitor-domain structured helpers

// LogTick logs the outcome of a single scheduler tick.
func (l *Logger) LogTick(ctx context.Context, network string, from, to uint64, matches int, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"network": network,
		"from":    from,
		"to":      to,
		"matches": matches,
	})
	if err != nil {
		entry.WithError(err).Error("tick failed")
		return
	}
	entry.Info("tick complete")
}

// LogBlockProcessed logs the result of processing a single block.
func (l *Logger) LogBlockProcessed(ctx context.Context, network string, blockNumber uint64, matches int, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"network": network,
		"block":   blockNumber,
		"matches": matches,
	})
	if err != nil {
		entry.WithError(err).Warn("block processing failed")
		return
	}
	entry.Debug("block processed")
}

// LogMatch logs a filter-engine match record.
func (l *Logger) LogMatch(ctx context.Context, network, monitor, txHash string, signatures []string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"network":    network,
		"monitor":    monitor,
		"tx_hash":    txHash,
		"signatures": signatures,
	}).Info("monitor match")
}

// LogTriggerDispatch logs the outcome of a single trigger dispatch.
func (l *Logger) LogTriggerDispatch(ctx context.Context, trigger, kind string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"trigger": trigger,
		"kind":    kind,
	})
	if err != nil {
		entry.WithError(err).Error("trigger dispatch failed")
		return
	}
	entry.Info("trigger dispatched")
}

// LogRotation logs an endpoint-manager rotation attempt.
func (l *Logger) LogRotation(ctx context.Context, network, from, to string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"network":  network,
		"from_url": redactURL(from),
		"to_url":   redactURL(to),
	})
	if err != nil {
		entry.WithError(err).Warn("endpoint rotation failed")
		return
	}
	entry.Info("endpoint rotated")
}

// redactURL keeps only the scheme+host of a URL so query strings carrying API
// keys never reach a log line.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	if idx := strings.IndexAny(raw, "?#"); idx >= 0 {
		raw = raw[:idx]
	}
	if idx := strings.Index(raw, "@"); idx >= 0 {
		if schemeIdx := strings.Index(raw, "://"); schemeIdx >= 0 && schemeIdx < idx {
			raw = raw[:schemeIdx+3] + "***" + raw[idx:]
		}
	}
	return raw
}

// Global default logger, initialized once at startup.
var defaultLogger *Logger

// InitDefault initializes the default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the default logger, creating a fallback if uninitialized.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("unknown", "info", "json")
	}
	return defaultLogger
}
