package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
	"github.com/harrymomomedia/admachin-sub003/internal/config"
	"github.com/harrymomomedia/admachin-sub003/internal/resolver"
	"github.com/harrymomomedia/admachin-sub003/internal/wait"
)

// ProgressLog receives one entry per stage transition, wait outcome and
// attempted click. The task log satisfies this.
type ProgressLog interface {
	Info(ctx context.Context, format string, args ...interface{})
	Success(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, format string, args ...interface{})
	Error(ctx context.Context, format string, args ...interface{})
}

// stage is one step of the fixed wizard sequence. run returns the resolution
// when the stage clicked something, or a zero value for pure waits.
type stage struct {
	name string
	run  func(ctx context.Context, page schemas.Page, plog ProgressLog) (resolver.Resolution, error)
}

// Pipeline executes the fixed character-creation sequence against one task's
// source video. Stages run strictly in order; the first failure aborts the
// task. Stages that already mutated the upstream service are left as-is,
// there is no rollback.
type Pipeline struct {
	logger   *zap.Logger
	cfg      config.PipelineConfig
	viewport config.ViewportConfig
	res      *resolver.Resolver
	sleep    wait.Sleeper
	now      func() time.Time
}

func New(logger *zap.Logger, cfg config.PipelineConfig, viewport config.ViewportConfig, res *resolver.Resolver, sleep wait.Sleeper) *Pipeline {
	if sleep == nil {
		sleep = wait.Sleep
	}
	return &Pipeline{
		logger:   logger.Named("pipeline"),
		cfg:      cfg,
		viewport: viewport,
		res:      res,
		sleep:    sleep,
		now:      time.Now,
	}
}

// Run drives every stage for one task. On failure it captures diagnostics,
// echoes their paths into the task log and returns a StageError naming the
// stage; the partial stage results are returned either way.
func (p *Pipeline) Run(ctx context.Context, page schemas.Page, task schemas.Task, plog ProgressLog) ([]schemas.StageResult, error) {
	results := make([]schemas.StageResult, 0, 10)

	for _, st := range p.stages(task) {
		if err := ctx.Err(); err != nil {
			return results, &schemas.StageError{Stage: st.name, Err: err}
		}

		plog.Info(ctx, "stage %s: started", st.name)
		start := p.now()

		resolution, err := st.run(ctx, page, plog)
		if err != nil {
			results = append(results, schemas.StageResult{
				Stage:    st.name,
				Success:  false,
				Attempts: resolution.Attempts,
			})
			plog.Error(ctx, "stage %s failed after %s: %v", st.name, p.now().Sub(start).Round(time.Millisecond), err)
			p.captureDiagnostics(ctx, page, task.ID, st.name, plog)
			p.logger.Error("Stage failed",
				zap.String("task_id", task.ID),
				zap.String("stage", st.name),
				zap.Error(err),
			)
			return results, &schemas.StageError{Stage: st.name, Err: err}
		}

		results = append(results, schemas.StageResult{
			Stage:    st.name,
			Success:  true,
			Strategy: resolution.Strategy,
			Attempts: resolution.Attempts,
		})
		plog.Success(ctx, "stage %s: done", st.name)
	}

	return results, nil
}

// captureDiagnostics saves a full-page screenshot and the serialized markup
// for offline triage. Capture failures are logged but never mask the stage
// error that brought us here.
func (p *Pipeline) captureDiagnostics(ctx context.Context, page schemas.Page, taskID, stageName string, plog ProgressLog) {
	if p.cfg.DebugDir == "" {
		return
	}
	if err := os.MkdirAll(p.cfg.DebugDir, 0o755); err != nil {
		plog.Warn(ctx, "could not create debug dir %s: %v", p.cfg.DebugDir, err)
		return
	}

	base := fmt.Sprintf("%s_%s_%s", taskID, stageName, p.now().Format("20060102-150405"))

	if shot, err := page.CaptureScreenshot(ctx); err != nil {
		plog.Warn(ctx, "screenshot capture failed: %v", err)
	} else {
		path := filepath.Join(p.cfg.DebugDir, base+".png")
		if err := os.WriteFile(path, shot, 0o644); err != nil {
			plog.Warn(ctx, "could not write screenshot: %v", err)
		} else {
			plog.Info(ctx, "screenshot saved: %s", path)
		}
	}

	if html, err := page.CaptureHTML(ctx); err != nil {
		plog.Warn(ctx, "markup capture failed: %v", err)
	} else {
		path := filepath.Join(p.cfg.DebugDir, base+".html")
		if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
			plog.Warn(ctx, "could not write markup: %v", err)
		} else {
			plog.Info(ctx, "markup saved: %s", path)
		}
	}
}

func (p *Pipeline) settle(ctx context.Context) error {
	return p.sleep(ctx, p.cfg.SettleDelay)
}
