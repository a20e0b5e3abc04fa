package schemas

import (
	"errors"
	"fmt"
	"time"
)

// -- Task Models --
// These types mirror the rows of the external task store. The agent never
// creates tasks; it claims pending rows, appends to their logs and writes a
// terminal status back.

// TaskStatus is the lifecycle state of a queued automation request.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is one queued request to run the character-creation pipeline against
// one source video.
type Task struct {
	ID             string     `json:"id"`
	SourceVideoURL string     `json:"source_video_url"`
	CharacterID    *string    `json:"character_id,omitempty"`
	Status         TaskStatus `json:"status"`
	Log            []LogEntry `json:"log"`
	Result         *CharacterResult `json:"result,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LogEntry is one append-only progress record on a task. The JSON shape must
// stay stable; other contributors write into the same jsonb column.
type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// LogLevel classifies a log entry for operator display.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarn    LogLevel = "warning"
	LogError   LogLevel = "error"
)

// CharacterResult holds whatever the extractor managed to scrape from the
// finished character profile. Every field is optional; absence of any one of
// them does not fail the task.
type CharacterResult struct {
	CharacterID string `json:"character_id,omitempty"`
	ProfileURL  string `json:"profile_url,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Empty reports whether extraction produced nothing at all.
func (r CharacterResult) Empty() bool {
	return r.CharacterID == "" && r.ProfileURL == "" && r.DisplayName == "" && r.AvatarURL == ""
}

// -- Resolution Models --

// StrategyKind identifies one method of locating a UI element.
type StrategyKind string

const (
	StrategySemantic    StrategyKind = "semantic"
	StrategyGeometry    StrategyKind = "geometry"
	StrategyCoordinates StrategyKind = "coordinates"
)

// StageResult records the outcome of one pipeline stage, used to decide
// whether to proceed or abort and for telemetry in the task log.
type StageResult struct {
	Stage    string       `json:"stage"`
	Success  bool         `json:"success"`
	Strategy StrategyKind `json:"strategy,omitempty"`
	Attempts int          `json:"attempts"`
}

// -- Domain Errors --

// ErrElementNotFound is returned when every resolution strategy for a target
// has been exhausted without the post-condition ever passing.
var ErrElementNotFound = errors.New("element not found: all strategies exhausted")

// ErrStageTimeout is returned when a bounded wait exceeds its deadline.
var ErrStageTimeout = errors.New("stage timed out")

// StageError wraps a failure with the pipeline stage that produced it. The
// stage name ends up in the task's error_message for post-mortem triage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
