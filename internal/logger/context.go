package logger

import (
	"context"
	"sync"
)

type ctxKey struct{}

var (
	defaultMu  sync.RWMutex
	defaultLog = New(nil)
)

// GetDefault returns the process-wide logger for call sites that have no
// context, such as init paths and signal handlers.
func GetDefault() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLog
}

// SetDefaultLogger replaces the process-wide fallback. main calls this once
// after loading config; a nil argument is ignored.
func SetDefaultLogger(l *Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLog = l
	defaultMu.Unlock()
}

// WithContext attaches the logger to ctx so downstream calls pick up its
// tracing fields.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx, or the default logger when
// ctx is nil or carries none.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
			return l
		}
	}
	return GetDefault()
}

// WithField rebinds the context logger with one extra tracing field.
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	return FromContext(ctx).WithField(key, value).WithContext(ctx)
}

// WithFields rebinds the context logger with extra tracing fields.
func WithFields(ctx context.Context, fields Fields) context.Context {
	return FromContext(ctx).WithFields(fields).WithContext(ctx)
}

// SetRequestID stamps the request ID tracing field.
func SetRequestID(ctx context.Context, id string) context.Context {
	return WithField(ctx, FieldRequestID, id)
}

// SetComponent stamps the component tracing field.
func SetComponent(ctx context.Context, name string) context.Context {
	return WithField(ctx, FieldComponent, name)
}

// SetPath stamps the file-path tracing field.
func SetPath(ctx context.Context, path string) context.Context {
	return WithField(ctx, FieldPath, path)
}

// GetFieldString reads a string tracing field back out of the context logger.
// Missing or non-string fields read as "".
func GetFieldString(ctx context.Context, key string) string {
	if val, ok := FromContext(ctx).Data[key]; ok {
		s, _ := val.(string)
		return s
	}
	return ""
}

// GetRequestID reads the request ID stamped by the API middleware.
func GetRequestID(ctx context.Context) string {
	return GetFieldString(ctx, FieldRequestID)
}
