package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
	"github.com/harrymomomedia/admachin-sub003/internal/wait"
)

// Candidate is one clickable guess produced by a strategy.
type Candidate struct {
	Description string
	Click       func(ctx context.Context) error
}

// Strategy is one method of locating a UI target. Strategies are tried in the
// order given; each may yield several candidates, tried in the order yielded.
type Strategy interface {
	Kind() schemas.StrategyKind
	Candidates(ctx context.Context, page schemas.Page) ([]Candidate, error)
}

// PostCondition is the observable UI change that confirms a click had the
// intended effect, e.g. "a menu containing the create action is visible".
type PostCondition func(ctx context.Context) bool

// ProgressLog receives one entry per attempted click and per strategy
// transition. The task log satisfies this.
type ProgressLog interface {
	Info(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, format string, args ...interface{})
}

// Resolution reports which strategy and candidate finally produced the
// post-condition, for telemetry and for the task log.
type Resolution struct {
	StrategyIndex  int
	Strategy       schemas.StrategyKind
	CandidateIndex int
	Candidate      string
	Attempts       int
}

// Resolver drives the strategy cascade for one target at a time. It holds no
// per-page state; elements are never assumed stable across stages, so every
// stage resolves fresh.
type Resolver struct {
	logger   *zap.Logger
	postWait wait.Policy
	sleep    wait.Sleeper
}

// New creates a resolver. postWait bounds how long a clicked candidate has to
// produce the post-condition before the next candidate is tried.
func New(logger *zap.Logger, postWait wait.Policy, sleep wait.Sleeper) *Resolver {
	return &Resolver{
		logger:   logger.Named("resolver"),
		postWait: postWait,
		sleep:    sleep,
	}
}

// Resolve tries each strategy in order until a clicked candidate makes the
// post-condition pass. The target description is for logging only; it is
// never used to query the page. Exhaustion of all strategies returns
// schemas.ErrElementNotFound.
func (r *Resolver) Resolve(
	ctx context.Context,
	page schemas.Page,
	target string,
	strategies []Strategy,
	post PostCondition,
	plog ProgressLog,
) (Resolution, error) {
	attempts := 0

	for si, strat := range strategies {
		if ctx.Err() != nil {
			return Resolution{Attempts: attempts}, ctx.Err()
		}

		candidates, err := strat.Candidates(ctx, page)
		if err != nil {
			plog.Warn(ctx, "%s strategy could not enumerate candidates for %s: %v", strat.Kind(), target, err)
			continue
		}
		if len(candidates) == 0 {
			plog.Info(ctx, "%s strategy found no candidates for %s", strat.Kind(), target)
			continue
		}

		for ci, cand := range candidates {
			if ctx.Err() != nil {
				return Resolution{Attempts: attempts}, ctx.Err()
			}

			attempts++
			plog.Info(ctx, "trying %s via %s strategy: %s", target, strat.Kind(), cand.Description)

			if err := cand.Click(ctx); err != nil {
				plog.Warn(ctx, "click on %s failed: %v", cand.Description, err)
				continue
			}

			if err := wait.Until(ctx, r.postWait, r.sleep, func(ctx context.Context) bool {
				return post(ctx)
			}); err != nil {
				if ctx.Err() != nil {
					return Resolution{Attempts: attempts}, ctx.Err()
				}
				plog.Warn(ctx, "no effect after clicking %s", cand.Description)
				continue
			}

			res := Resolution{
				StrategyIndex:  si,
				Strategy:       strat.Kind(),
				CandidateIndex: ci,
				Candidate:      cand.Description,
				Attempts:       attempts,
			}
			plog.Info(ctx, "resolved %s via %s strategy (%s) after %d attempt(s)",
				target, res.Strategy, res.Candidate, res.Attempts)
			r.logger.Debug("Target resolved",
				zap.String("target", target),
				zap.String("strategy", string(res.Strategy)),
				zap.Int("attempts", res.Attempts),
			)
			return res, nil
		}
	}

	plog.Warn(ctx, "all strategies exhausted for %s after %d attempt(s)", target, attempts)
	return Resolution{Attempts: attempts}, fmt.Errorf("target %q: %w", target, schemas.ErrElementNotFound)
}
