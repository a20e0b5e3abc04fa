package wait

import (
	"context"
	"fmt"
	"time"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
)

// Forever marks a wait with no deadline. The only unbounded wait in the
// pipeline is the interactive login, which needs a human.
const Forever time.Duration = -1

// Policy names a polling wait: how often to probe and how long to keep going.
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Bounded builds a deadline-capped policy.
func Bounded(interval, timeout time.Duration) Policy {
	return Policy{Interval: interval, Timeout: timeout}
}

// Unbounded builds a policy that polls until the predicate passes or the
// context is cancelled.
func Unbounded(interval time.Duration) Policy {
	return Policy{Interval: interval, Timeout: Forever}
}

// Sleeper pauses between polls. Tests substitute an instant implementation so
// wait behavior is checked without wall-clock delays.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper; it respects context cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Until polls pred at the policy's interval until it passes, the policy's
// deadline expires (schemas.ErrStageTimeout), or the context is cancelled.
// The predicate is probed once immediately before any sleep.
func Until(ctx context.Context, p Policy, sleep Sleeper, pred func(ctx context.Context) bool) error {
	if sleep == nil {
		sleep = Sleep
	}

	var deadline time.Time
	if p.Timeout != Forever {
		deadline = time.Now().Add(p.Timeout)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if pred(ctx) {
			return nil
		}
		if p.Timeout != Forever && !time.Now().Before(deadline) {
			return fmt.Errorf("condition not met within %s: %w", p.Timeout, schemas.ErrStageTimeout)
		}
		if err := sleep(ctx, p.Interval); err != nil {
			return err
		}
	}
}
