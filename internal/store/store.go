package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
)

// DBPool abstracts the pgxpool.Pool so tests can run against pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides the PostgreSQL implementation of the task store. It owns no
// tasks; rows are created by the web application and this store only claims
// them and writes progress back.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// FetchPending returns every claimable task: pending status with a source
// video attached, oldest request first. It is called once per run; tasks that
// arrive later wait for the next invocation.
func (s *Store) FetchPending(ctx context.Context) ([]schemas.Task, error) {
	query := `
        SELECT id, source_video_url, character_id, status, log, error_message, created_at, updated_at
        FROM character_tasks
        WHERE status = 'pending' AND source_video_url IS NOT NULL
        ORDER BY created_at ASC;
    `
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []schemas.Task
	for rows.Next() {
		var t schemas.Task
		var logRaw []byte
		var statusStr string

		err := rows.Scan(
			&t.ID, &t.SourceVideoURL, &t.CharacterID, &statusStr,
			&logRaw, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}

		t.Status = schemas.TaskStatus(statusStr)
		if len(logRaw) > 0 {
			if err := json.Unmarshal(logRaw, &t.Log); err != nil {
				// A malformed log must not block the task; start appending
				// after whatever is there.
				s.log.Warn("Task has malformed log column, continuing with empty log",
					zap.String("task_id", t.ID), zap.Error(err))
				t.Log = nil
			}
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return tasks, nil
}

// MarkProcessing claims a task for this run.
func (s *Store) MarkProcessing(ctx context.Context, taskID string) error {
	sql := `UPDATE character_tasks SET status = 'processing', updated_at = now() WHERE id = $1;`
	if _, err := s.pool.Exec(ctx, sql, taskID); err != nil {
		return fmt.Errorf("failed to mark task %s processing: %w", taskID, err)
	}
	return nil
}

// UpdateLog persists the full log array for a task. Called after every
// appended entry so a crash mid-task loses nothing already written.
func (s *Store) UpdateLog(ctx context.Context, taskID string, entries []schemas.LogEntry) error {
	logJSON, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal task log: %w", err)
	}

	sql := `UPDATE character_tasks SET log = $2, updated_at = now() WHERE id = $1;`
	if _, err := s.pool.Exec(ctx, sql, taskID, logJSON); err != nil {
		return fmt.Errorf("failed to update log for task %s: %w", taskID, err)
	}
	return nil
}

// Complete writes the terminal success state with whatever result fields the
// extractor produced. Missing result fields stay NULL.
func (s *Store) Complete(ctx context.Context, taskID string, result schemas.CharacterResult, entries []schemas.LogEntry) error {
	logJSON, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal task log: %w", err)
	}

	sql := `
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
	_, err = s.pool.Exec(ctx, sql, taskID,
		result.CharacterID, result.ProfileURL, result.DisplayName, result.AvatarURL, logJSON)
	if err != nil {
		return fmt.Errorf("failed to complete task %s: %w", taskID, err)
	}
	return nil
}

// Fail writes the terminal failure state with the triggering error message.
func (s *Store) Fail(ctx context.Context, taskID string, message string, entries []schemas.LogEntry) error {
	logJSON, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal task log: %w", err)
	}

	sql := `
        UPDATE character_tasks
        SET status = 'failed', error_message = $2, log = $3, updated_at = now()
        WHERE id = $1;
    `
	if _, err := s.pool.Exec(ctx, sql, taskID, message, logJSON); err != nil {
		return fmt.Errorf("failed to mark task %s failed: %w", taskID, err)
	}
	return nil
}
