package tasklog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
)

// Persister flushes the full log array to the external task store. The store
// implementation satisfies this; tests substitute a recorder.
type Persister interface {
	UpdateLog(ctx context.Context, taskID string, entries []schemas.LogEntry) error
}

// glyphs prefix the console mirror of each entry so an operator can scan a
// scrolling run at a glance.
var glyphs = map[schemas.LogLevel]string{
	schemas.LogInfo:    "→",
	schemas.LogSuccess: "✓",
	schemas.LogWarn:    "⚠",
	schemas.LogError:   "✗",
}

// TaskLog is the append-only progress log for one task run. Every appended
// entry is flushed to the store immediately; a crash mid-task must not lose
// entries already written. Entries are never edited or removed.
type TaskLog struct {
	taskID    string
	persister Persister
	logger    *zap.Logger
	entries   []schemas.LogEntry
	nextID    int64
	now       func() time.Time
}

// New creates a log for one task run, seeded with whatever entries the task
// row already carries. IDs start from a high time-derived base so entries
// appended by other contributors to the same record can never collide.
func New(taskID string, existing []schemas.LogEntry, p Persister, logger *zap.Logger) *TaskLog {
	l := &TaskLog{
		taskID:    taskID,
		persister: p,
		logger:    logger.Named("tasklog").With(zap.String("task_id", taskID)),
		entries:   append([]schemas.LogEntry(nil), existing...),
		now:       time.Now,
	}
	l.nextID = l.now().UnixMilli() * 1000
	return l
}

// Info records routine progress.
func (l *TaskLog) Info(ctx context.Context, format string, args ...interface{}) {
	l.append(ctx, schemas.LogInfo, format, args...)
}

// Success records a completed stage or extraction.
func (l *TaskLog) Success(ctx context.Context, format string, args ...interface{}) {
	l.append(ctx, schemas.LogSuccess, format, args...)
}

// Warn records a tolerated anomaly, e.g. a missing extraction field.
func (l *TaskLog) Warn(ctx context.Context, format string, args ...interface{}) {
	l.append(ctx, schemas.LogWarn, format, args...)
}

// Error records a fatal stage failure.
func (l *TaskLog) Error(ctx context.Context, format string, args ...interface{}) {
	l.append(ctx, schemas.LogError, format, args...)
}

// Entries returns a copy of the accumulated log, insertion order preserved.
func (l *TaskLog) Entries() []schemas.LogEntry {
	return append([]schemas.LogEntry(nil), l.entries...)
}

func (l *TaskLog) append(ctx context.Context, level schemas.LogLevel, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	entry := schemas.LogEntry{
		ID:        l.nextID,
		Timestamp: l.now().UTC(),
		Level:     level,
		Message:   msg,
	}
	l.nextID++
	l.entries = append(l.entries, entry)

	l.mirror(level, msg)

	// Best-effort persistence: a rejected store write must not abort the
	// pipeline, but it is surfaced on the console.
	if err := l.persister.UpdateLog(ctx, l.taskID, l.entries); err != nil {
		l.logger.Warn("Failed to persist task log entry", zap.Int64("entry_id", entry.ID), zap.Error(err))
	}
}

func (l *TaskLog) mirror(level schemas.LogLevel, msg string) {
	line := fmt.Sprintf("%s %s", glyphs[level], msg)
	switch level {
	case schemas.LogWarn:
		l.logger.Warn(line)
	case schemas.LogError:
		l.logger.Error(line)
	default:
		l.logger.Info(line)
	}
}
