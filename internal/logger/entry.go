package logger

import (
	"context"
)

// Entry carries metric fields toward a single log line. Tracing fields
// (request_id, path) travel in the context; metric fields (duration_ms,
// count) are attached per line through an Entry.
//
//	logger.With(logger.Fields{...}).WithDuration(ms).Info(ctx, "Tick completed")
type Entry struct {
	logger *Logger
	fields Fields
}

// With starts an Entry on the default logger.
func With(fields Fields) *Entry {
	return &Entry{logger: GetDefault(), fields: fields}
}

// With returns a copy of the Entry with extra fields merged in.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{logger: e.logger, fields: merged}
}

func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.With(Fields{key: value})
}

func (e *Entry) WithDuration(ms int64) *Entry {
	return e.WithField(FieldDurationMs, ms)
}

func (e *Entry) WithCount(count int) *Entry {
	return e.WithField(FieldCount, count)
}

func (e *Entry) WithStatus(status string) *Entry {
	return e.WithField(FieldStatus, status)
}

// resolve prefers the context logger so tracing fields set upstream are kept.
func (e *Entry) resolve(ctx context.Context) *Logger {
	if ctx != nil {
		return FromContext(ctx)
	}
	return e.logger
}

func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Debugf(format, args...)
}

func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Infof(format, args...)
}

func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Warnf(format, args...)
}

func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.resolve(ctx).WithFields(e.fields).Errorf(format, args...)
}
