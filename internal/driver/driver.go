package driver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
	"github.com/harrymomomedia/admachin-sub003/internal/extract"
	"github.com/harrymomomedia/admachin-sub003/internal/pipeline"
	"github.com/harrymomomedia/admachin-sub003/internal/tasklog"
)

// TaskStore is the slice of the external store the driver needs. The
// postgres-backed store satisfies this.
type TaskStore interface {
	tasklog.Persister
	FetchPending(ctx context.Context) ([]schemas.Task, error)
	MarkProcessing(ctx context.Context, taskID string) error
	Complete(ctx context.Context, taskID string, result schemas.CharacterResult, entries []schemas.LogEntry) error
	Fail(ctx context.Context, taskID string, message string, entries []schemas.LogEntry) error
}

// PipelineRunner runs the wizard stages for one task.
type PipelineRunner interface {
	Run(ctx context.Context, page schemas.Page, task schemas.Task, plog pipeline.ProgressLog) ([]schemas.StageResult, error)
}

// ResultExtractor scrapes the finished character's profile page.
type ResultExtractor interface {
	Extract(ctx context.Context, page schemas.Page, plog extract.ProgressLog) schemas.CharacterResult
}

// PageFactory opens the browser page for a run. The returned release func
// must be safe to call exactly once and tears the session down.
type PageFactory func(ctx context.Context) (schemas.Page, func(), error)

// Driver is the run-to-completion batch loop: fetch the queue once, claim and
// process each task strictly in order, exit when the queue drains. One
// browser page serves the whole run; the upstream site is stateful per tab
// and not built for parallel automation.
type Driver struct {
	logger    *zap.Logger
	store     TaskStore
	pipeline  PipelineRunner
	extractor ResultExtractor
	newPage   PageFactory
}

func New(logger *zap.Logger, store TaskStore, pl PipelineRunner, ex ResultExtractor, newPage PageFactory) *Driver {
	return &Driver{
		logger:    logger.Named("driver"),
		store:     store,
		pipeline:  pl,
		extractor: ex,
		newPage:   newPage,
	}
}

// Run processes every pending task and returns once the queue is drained.
// A failing task never stops the run; only a context cancellation or an
// unusable store/browser does.
func (d *Driver) Run(ctx context.Context) error {
	tasks, err := d.store.FetchPending(ctx)
	if err != nil {
		return fmt.Errorf("fetching pending tasks: %w", err)
	}
	if len(tasks) == 0 {
		d.logger.Info("No pending tasks")
		return nil
	}
	d.logger.Info("Queue fetched", zap.Int("tasks", len(tasks)))

	page, release, err := d.newPage(ctx)
	if err != nil {
		return fmt.Errorf("opening browser session: %w", err)
	}
	defer release()

	completed, failed := 0, 0
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("Run cancelled",
				zap.Int("completed", completed),
				zap.Int("remaining", len(tasks)-completed-failed),
			)
			return err
		}

		if err := d.processTask(ctx, page, task); err != nil {
			failed++
			d.logger.Error("Task failed",
				zap.String("task_id", task.ID),
				zap.Error(err),
			)
			continue
		}
		completed++
	}

	d.logger.Info("Run finished",
		zap.Int("completed", completed),
		zap.Int("failed", failed),
	)
	return nil
}

// processTask claims one task and takes it to a terminal state. Panics from
// the pipeline or extractor are contained here so one broken task cannot
// take down the rest of the queue.
func (d *Driver) processTask(ctx context.Context, page schemas.Page, task schemas.Task) (err error) {
	var tlog *tasklog.TaskLog

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
			if tlog != nil {
				tlog.Error(ctx, "internal error: %v", r)
				d.failTask(ctx, task.ID, err, tlog)
			}
		}
	}()

	if err := d.store.MarkProcessing(ctx, task.ID); err != nil {
		return fmt.Errorf("claiming task: %w", err)
	}

	tlog = tasklog.New(task.ID, task.Log, d.store, d.logger)
	tlog.Info(ctx, "task started: %s", task.SourceVideoURL)

	if _, perr := d.pipeline.Run(ctx, page, task, tlog); perr != nil {
		d.failTask(ctx, task.ID, perr, tlog)
		return perr
	}

	result := d.extractor.Extract(ctx, page, tlog)
	tlog.Success(ctx, "task completed")

	if err := d.store.Complete(ctx, task.ID, result, tlog.Entries()); err != nil {
		return fmt.Errorf("writing completion: %w", err)
	}
	return nil
}

func (d *Driver) failTask(ctx context.Context, taskID string, cause error, tlog *tasklog.TaskLog) {
	if err := d.store.Fail(ctx, taskID, cause.Error(), tlog.Entries()); err != nil {
		d.logger.Error("Could not record task failure",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
	}
}
