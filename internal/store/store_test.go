package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
)

// flexibleRegex collapses whitespace so the expectation survives query
// reformatting.
func flexibleRegex(sql string) string {
	quoted := regexp.QuoteMeta(strings.TrimSpace(sql))
	return regexp.MustCompile(`\s+`).ReplaceAllString(quoted, `\s+`)
}

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestFetchPending(t *testing.T) {
	ctx := context.Background()

	query := `
        SELECT id, source_video_url, character_id, status, log, error_message, created_at, updated_at
        FROM character_tasks
        WHERE status = 'pending' AND source_video_url IS NOT NULL
        ORDER BY created_at ASC;
    `
	columns := []string{"id", "source_video_url", "character_id", "status", "log", "error_message", "created_at", "updated_at"}

	t.Run("should return pending tasks in creation order", func(t *testing.T) {
		s, mockPool := newTestStore(t)

		now := time.Now()
		logJSON := []byte(`[{"id":100,"timestamp":"2025-08-30T10:00:00Z","level":"info","message":"queued"}]`)

		rows := pgxmock.NewRows(columns).
			AddRow("task-1", "https://sora.chatgpt.com/p/abc", nil, "pending", logJSON, nil, now.Add(-time.Hour), now).
			AddRow("task-2", "https://sora.chatgpt.com/p/def", nil, "pending", []byte(nil), nil, now, now)

		mockPool.ExpectQuery(flexibleRegex(query)).WillReturnRows(rows)

		tasks, err := s.FetchPending(ctx)
		require.NoError(t, err)
		require.Len(t, tasks, 2)

		assert.Equal(t, "task-1", tasks[0].ID, "oldest request must come first")
		assert.Equal(t, schemas.TaskPending, tasks[0].Status)
		require.Len(t, tasks[0].Log, 1)
		assert.Equal(t, int64(100), tasks[0].Log[0].ID)
		assert.Empty(t, tasks[1].Log)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should tolerate a malformed log column", func(t *testing.T) {
		s, mockPool := newTestStore(t)

		now := time.Now()
		rows := pgxmock.NewRows(columns).
			AddRow("task-1", "https://sora.chatgpt.com/p/abc", nil, "pending", []byte(`{not json`), nil, now, now)

		mockPool.ExpectQuery(flexibleRegex(query)).WillReturnRows(rows)

		tasks, err := s.FetchPending(ctx)
		require.NoError(t, err, "a broken log must not block the task")
		require.Len(t, tasks, 1)
		assert.Empty(t, tasks[0].Log)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should propagate query errors", func(t *testing.T) {
		s, mockPool := newTestStore(t)

		queryErr := errors.New("connection reset")
		mockPool.ExpectQuery(flexibleRegex(query)).WillReturnError(queryErr)

		_, err := s.FetchPending(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, queryErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestMarkProcessing(t *testing.T) {
	s, mockPool := newTestStore(t)

	taskID := uuid.NewString()
	mockPool.ExpectExec(flexibleRegex(`UPDATE character_tasks SET status = 'processing', updated_at = now() WHERE id = $1;`)).
		WithArgs(taskID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkProcessing(context.Background(), taskID))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestUpdateLog(t *testing.T) {
	s, mockPool := newTestStore(t)

	taskID := uuid.NewString()
	ts, err := time.Parse(time.RFC3339, "2025-08-30T10:00:00Z")
	require.NoError(t, err)

	entries := []schemas.LogEntry{
		{ID: 1000, Timestamp: ts, Level: schemas.LogInfo, Message: "navigating to source video"},
		{ID: 1001, Timestamp: ts.Add(time.Second), Level: schemas.LogSuccess, Message: "login detected"},
	}
	logJSON, err := json.Marshal(entries)
	require.NoError(t, err)

	mockPool.ExpectExec(flexibleRegex(`UPDATE character_tasks SET log = $2, updated_at = now() WHERE id = $1;`)).
		WithArgs(taskID, logJSON).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateLog(context.Background(), taskID, entries))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestComplete(t *testing.T) {
	completeSQL := `
        UPDATE character_tasks
        SET status = 'completed',
            result_character_id = NULLIF($2, ''),
            result_profile_url = NULLIF($3, ''),
            result_display_name = NULLIF($4, ''),
            result_avatar_url = NULLIF($5, ''),
            log = $6,
            updated_at = now()
        WHERE id = $1;
    `

	t.Run("should persist full result", func(t *testing.T) {
		s, mockPool := newTestStore(t)

		taskID := uuid.NewString()
		result := schemas.CharacterResult{
			CharacterID: "ch_abc123",
			ProfileURL:  "https://sora.chatgpt.com/c/ch_abc123",
			DisplayName: "Captain Nimbus",
			AvatarURL:   "https://cdn.example.com/avatars/ch_abc123.png",
		}

		mockPool.ExpectExec(flexibleRegex(completeSQL)).
			WithArgs(taskID, result.CharacterID, result.ProfileURL, result.DisplayName, result.AvatarURL, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.Complete(context.Background(), taskID, result, nil))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should persist partial result with empty fields", func(t *testing.T) {
		s, mockPool := newTestStore(t)

		taskID := uuid.NewString()
		// Extraction tolerance: identifier only, name and avatar missing.
		result := schemas.CharacterResult{CharacterID: "ch_abc123"}

		mockPool.ExpectExec(flexibleRegex(completeSQL)).
			WithArgs(taskID, "ch_abc123", "", "", "", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.Complete(context.Background(), taskID, result, nil))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestFail(t *testing.T) {
	s, mockPool := newTestStore(t)

	taskID := uuid.NewString()
	failSQL := `
        UPDATE character_tasks
        SET status = 'failed', error_message = $2, log = $3, updated_at = now()
        WHERE id = $1;
    `
	mockPool.ExpectExec(flexibleRegex(failSQL)).
		WithArgs(taskID, `stage "await_processing" failed: stage timed out`, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	stageErr := &schemas.StageError{Stage: "await_processing", Err: schemas.ErrStageTimeout}
	require.NoError(t, s.Fail(context.Background(), taskID, stageErr.Error(), nil))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
