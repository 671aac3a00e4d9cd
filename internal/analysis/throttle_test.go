package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottlerSpacesDispatches(t *testing.T) {
	clock := newFakeClock()
	th := NewThrottler(MinRequestInterval, clock)
	ctx := context.Background()

	waited, err := th.Wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, waited, "first dispatch is immediate")

	clock.Sleep(ctx, 500*time.Millisecond)
	waited, err = th.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, waited)

	clock.Sleep(ctx, 5*time.Second)
	waited, err = th.Wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, waited, "a long idle gap needs no wait")
}

func TestThrottlerMeasuresFromLateWakeup(t *testing.T) {
	clock := newFakeClock()
	clock.overshoot = 50 * time.Millisecond
	th := NewThrottler(MinRequestInterval, clock)
	ctx := context.Background()

	_, err := th.Wait(ctx)
	require.NoError(t, err)
	first := clock.Now()

	waited, err := th.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, MinRequestInterval, waited)
	second := clock.Now()
	assert.Equal(t, MinRequestInterval+50*time.Millisecond, second.Sub(first))

	// the next slot counts from the late wake-up, not from the schedule
	waited, err = th.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, MinRequestInterval, waited)
	assert.GreaterOrEqual(t, clock.Now().Sub(second), MinRequestInterval)
}

func TestThrottlerCanceled(t *testing.T) {
	th := NewThrottler(MinRequestInterval, newFakeClock())
	_, err := th.Wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = th.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThrottlerConcurrentCallers(t *testing.T) {
	const interval = 40 * time.Millisecond
	const callers = 4
	th := NewThrottler(interval, SystemClock{})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := th.Wait(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// n callers need at least n-1 full intervals between them.
	assert.GreaterOrEqual(t, time.Since(start), (callers-1)*interval)
}

func TestSystemClockSleepCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := SystemClock{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
