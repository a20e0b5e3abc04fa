package wait

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
)

// instantSleep records requested pauses without actually sleeping.
func instantSleep(count *int) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*count++
		return ctx.Err()
	}
}

func TestUntilPredicatePasses(t *testing.T) {
	sleeps := 0
	polls := 0

	err := Until(context.Background(), Bounded(time.Second, time.Hour), instantSleep(&sleeps),
		func(ctx context.Context) bool {
			polls++
			return polls >= 3
		})

	require.NoError(t, err)
	assert.Equal(t, 3, polls)
	assert.Equal(t, 2, sleeps, "no sleep after the passing poll")
}

func TestUntilImmediatePass(t *testing.T) {
	sleeps := 0

	err := Until(context.Background(), Bounded(time.Second, time.Hour), instantSleep(&sleeps),
		func(ctx context.Context) bool { return true })

	require.NoError(t, err)
	assert.Zero(t, sleeps, "predicate is probed before any sleep")
}

func TestUntilTimeout(t *testing.T) {
	sleeps := 0

	err := Until(context.Background(), Bounded(time.Millisecond, 0), instantSleep(&sleeps),
		func(ctx context.Context) bool { return false })

	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrStageTimeout)
}

func TestUnboundedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	polls := 0
	err := Until(ctx, Unbounded(time.Millisecond), nil,
		func(ctx context.Context) bool {
			polls++
			if polls == 5 {
				cancel()
			}
			return false
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, polls, 5)
}

func TestSleepRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
