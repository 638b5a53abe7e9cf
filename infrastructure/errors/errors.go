// Package errors provides the unified error-context type used throughout the
// monitor: every error carries a kind, a message, an optional source error,
// key/value metadata, a target-path (component chain), a timestamp, and a
// trace id, and is logged exactly once at the outermost propagation boundary.
package errors

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Kind is the error taxonomy from spec §7. It is not an HTTP status; it
// tells a caller how the error should be recovered from (retry, isolate,
// abort startup, ...).
type Kind string

const (
	KindConfig       Kind = "config"       // fatal at startup only
	KindRepository   Kind = "repository"   // fatal at startup only
	KindTransport    Kind = "transport"     // triggers rotation + retry
	KindChain        Kind = "chain"         // per-block; logged and skipped
	KindFilter       Kind = "filter"        // decode failure; logged, other conditions continue
	KindExpression   Kind = "expression"    // condition evaluates false; monitor continues
	KindNotification Kind = "notification"  // logged; other triggers still run
	KindTrigger      Kind = "trigger"       // logged; other matches still fire
)

// Context is an immutable error with propagation context.
type Context struct {
	Kind      Kind
	Message   string
	Source    error
	Metadata  map[string]any
	Path      []string
	Timestamp time.Time
	TraceID   string

	loggedOnce *sync.Once
}

// New creates a root Context. path is the component that raised it, e.g.
// "blockwatcher.ethereum" or "filter.evm".
func New(kind Kind, path, message string) *Context {
	return &Context{
		Kind:       kind,
		Message:    message,
		Path:       []string{path},
		Timestamp:  time.Now(),
		TraceID:    uuid.NewString(),
		Metadata:   map[string]any{},
		loggedOnce: &sync.Once{},
	}
}

// Wrap attaches a new path segment and message to an existing error without
// logging it — only the outermost boundary logs (see LogOnce). If err is
// already a *Context, its trace id, metadata and loggedOnce are preserved and
// the new path segment is prepended so Path reads outermost-first.
func Wrap(kind Kind, path, message string, err error) *Context {
	var inner *Context
	if errors.As(err, &inner) {
		return &Context{
			Kind:       kind,
			Message:    message,
			Source:     err,
			Metadata:   inner.Metadata,
			Path:       append([]string{path}, inner.Path...),
			Timestamp:  inner.Timestamp,
			TraceID:    inner.TraceID,
			loggedOnce: inner.loggedOnce,
		}
	}
	return &Context{
		Kind:       kind,
		Message:    message,
		Source:     err,
		Path:       []string{path},
		Metadata:   map[string]any{},
		Timestamp:  time.Now(),
		TraceID:    uuid.NewString(),
		loggedOnce: &sync.Once{},
	}
}

// WithMetadata attaches a key/value pair. Values that implement Redactable
// are stored via their Redacted() form so a Secret's cleartext can never end
// up in an error context (testable property: secret redaction, spec §8).
func (c *Context) WithMetadata(key string, value any) *Context {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	if r, ok := value.(Redactable); ok {
		c.Metadata[key] = r.Redacted()
	} else {
		c.Metadata[key] = value
	}
	return c
}

// Redactable is implemented by values (e.g. Secret) whose String/real value
// must never be written into logs or error contexts.
type Redactable interface {
	Redacted() string
}

// Error implements the error interface.
func (c *Context) Error() string {
	if c.Source != nil {
		return fmt.Sprintf("[%s] %s: %v", c.Kind, c.Message, c.Source)
	}
	return fmt.Sprintf("[%s] %s", c.Kind, c.Message)
}

// Unwrap returns the wrapped error so errors.Is/As traverse the chain.
func (c *Context) Unwrap() error {
	return c.Source
}

// LogOnce logs this error context at the given logger exactly once, even if
// called from multiple wrapping layers sharing the same underlying sync.Once
// (see Wrap). Inner layers should call Wrap, not LogOnce; only the outermost
// propagation boundary (a watcher tick, a trigger dispatch) calls LogOnce.
func (c *Context) LogOnce(logger *logrus.Logger) {
	if c.loggedOnce == nil {
		c.loggedOnce = &sync.Once{}
	}
	c.loggedOnce.Do(func() {
		fields := logrus.Fields{
			"kind":      string(c.Kind),
			"path":      c.Path,
			"trace_id":  c.TraceID,
			"timestamp": c.Timestamp.Format(time.RFC3339Nano),
		}
		for k, v := range c.Metadata {
			fields[k] = v
		}
		entry := logger.WithFields(fields)
		if c.Source != nil {
			entry = entry.WithField("source", c.Source.Error())
		}
		entry.Error(c.Message)
	})
}

// Is reports whether err is a *Context of the given kind.
func Is(err error, kind Kind) bool {
	var c *Context
	if errors.As(err, &c) {
		return c.Kind == kind
	}
	return false
}

// As extracts the *Context from an error chain, if any.
func As(err error) (*Context, bool) {
	var c *Context
	ok := errors.As(err, &c)
	return c, ok
}

// Fatal reports whether this kind is fatal only at process startup, per the
// propagation policy in spec §7.
func (k Kind) Fatal() bool {
	return k == KindConfig || k == KindRepository
}
