// Package logging provides the process-wide structured logger. Records
// carry a base label set (env, app, process, team, instance, cycle) and
// optional numeric metrics; dashboards aggregate on both.
package logging

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Labels is a label map as supplied by callers. Values of any type are
// accepted; everything is stringified before emission.
type Labels map[string]any

// Logger emits structured records through zap. Per-call labels merge
// over the base map given at construction.
type Logger struct {
	zl   *zap.Logger
	base map[string]string
}

// New builds a production JSON logger for one process of one cycle.
// instance_id is minted here so concurrent worker processes can be told
// apart in a shared log stream.
func New(env, app, process, team, cycleID string) (*Logger, error) {
	zl, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	base := map[string]string{
		"env":         env,
		"app":         app,
		"process":     process,
		"team":        team,
		"instance_id": uuid.NewString(),
		"cycle_id":    cycleID,
	}
	return &Logger{zl: zl, base: base}, nil
}

// NewNop returns a logger that discards everything. For tests.
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop(), base: map[string]string{}}
}

// NewWithZap wraps an existing zap logger with base labels. Used by
// tests that observe output.
func NewWithZap(zl *zap.Logger, base Labels) *Logger {
	return &Logger{zl: zl, base: stringify(base)}
}

// Zap exposes the underlying logger for plain structured logging that
// needs no label or metric envelope.
func (l *Logger) Zap() *zap.Logger { return l.zl }

// With returns a logger whose base labels include the given ones.
func (l *Logger) With(labels Labels) *Logger {
	merged := make(map[string]string, len(l.base)+len(labels))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range stringify(labels) {
		merged[k] = v
	}
	return &Logger{zl: l.zl, base: merged}
}

// Info emits an info record with merged labels.
func (l *Logger) Info(msg string, labels Labels) {
	l.emit(zapcore.InfoLevel, msg, labels, nil)
}

// Warn emits a warning record with merged labels.
func (l *Logger) Warn(msg string, labels Labels) {
	l.emit(zapcore.WarnLevel, msg, labels, nil)
}

// Error emits an error record with merged labels. err may be nil.
func (l *Logger) Error(msg string, err error, labels Labels) {
	fields := []zap.Field{zap.Any("labels", l.merged(labels))}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.zl.Error(msg, fields...)
}

// Metric emits a named numeric metric as an info record. The metric
// name is also the record message so counters can be matched by either.
func (l *Logger) Metric(name string, value float64, labels Labels) {
	l.emit(zapcore.InfoLevel, name, labels, map[string]float64{name: value})
}

// Sync flushes buffered records. Call before process exit.
func (l *Logger) Sync() error { return l.zl.Sync() }

func (l *Logger) emit(level zapcore.Level, msg string, labels Labels, metrics map[string]float64) {
	fields := []zap.Field{zap.Any("labels", l.merged(labels))}
	if len(metrics) > 0 {
		fields = append(fields, zap.Any("metrics", metrics))
	}
	if ce := l.zl.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *Logger) merged(labels Labels) map[string]string {
	merged := make(map[string]string, len(l.base)+len(labels))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range stringify(labels) {
		merged[k] = v
	}
	return merged
}

func stringify(labels Labels) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		switch s := v.(type) {
		case string:
			out[k] = s
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
