package tasklog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
)

// recordingPersister captures every flush, optionally failing.
type recordingPersister struct {
	flushes [][]schemas.LogEntry
	err     error
}

func (p *recordingPersister) UpdateLog(_ context.Context, _ string, entries []schemas.LogEntry) error {
	snapshot := append([]schemas.LogEntry(nil), entries...)
	p.flushes = append(p.flushes, snapshot)
	return p.err
}

func TestAppendOrderAndIDs(t *testing.T) {
	ctx := context.Background()
	p := &recordingPersister{}
	l := New("task-1", nil, p, zap.NewNop())

	l.Info(ctx, "navigating to %s", "https://sora.chatgpt.com/p/abc")
	l.Success(ctx, "login detected")
	l.Warn(ctx, "display name not found")
	l.Error(ctx, "processing timed out")

	entries := l.Entries()
	require.Len(t, entries, 4)

	assert.Equal(t, "navigating to https://sora.chatgpt.com/p/abc", entries[0].Message)
	assert.Equal(t, schemas.LogSuccess, entries[1].Level)
	assert.Equal(t, schemas.LogWarn, entries[2].Level)
	assert.Equal(t, schemas.LogError, entries[3].Level)

	// IDs are strictly increasing from a high time-derived base.
	base := time.Now().Add(-time.Minute).UnixMilli() * 1000
	assert.Greater(t, entries[0].ID, base)
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].ID+1, entries[i].ID, "IDs must increment monotonically")
	}
}

func TestEveryAppendFlushesFullLog(t *testing.T) {
	ctx := context.Background()
	p := &recordingPersister{}
	l := New("task-1", nil, p, zap.NewNop())

	for i := 0; i < 5; i++ {
		l.Info(ctx, "entry %d", i)
	}

	require.Len(t, p.flushes, 5, "one flush per append, no batching")
	for i, flush := range p.flushes {
		assert.Len(t, flush, i+1, "each flush carries the full log so far")
	}

	// Round-trip: order preserved, nothing dropped.
	last := p.flushes[len(p.flushes)-1]
	for i, e := range last {
		assert.Equal(t, l.Entries()[i], e)
	}
}

func TestSeededWithExistingEntries(t *testing.T) {
	ctx := context.Background()
	existing := []schemas.LogEntry{
		{ID: 42, Level: schemas.LogInfo, Message: "created by web app"},
	}
	p := &recordingPersister{}
	l := New("task-1", existing, p, zap.NewNop())

	l.Info(ctx, "claimed by agent")

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(42), entries[0].ID, "pre-existing entries are never reordered")
	assert.Greater(t, entries[1].ID, int64(42))
}

func TestPersistFailureKeepsEntry(t *testing.T) {
	ctx := context.Background()
	p := &recordingPersister{err: errors.New("store unavailable")}
	l := New("task-1", nil, p, zap.NewNop())

	l.Info(ctx, "first")
	l.Info(ctx, "second")

	// The write failed both times but the in-memory log is intact; the next
	// successful flush carries everything.
	require.Len(t, l.Entries(), 2)
	assert.Equal(t, "first", l.Entries()[0].Message)
	assert.Equal(t, "second", l.Entries()[1].Message)
}
