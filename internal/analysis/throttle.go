package analysis

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MinRequestInterval is the minimum gap between two dispatches from one client.
const MinRequestInterval = 2 * time.Second

// Clock abstracts time so throttle and backoff delays can be observed in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Throttler spaces dispatches at least one interval apart.
// The mutex is held across the wait, so concurrent callers queue up and
// each one dispatches a full interval after the previous.
type Throttler struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	interval time.Duration
	clock    Clock
}

// NewThrottler returns a throttler allowing one dispatch per interval.
func NewThrottler(interval time.Duration, clock Clock) *Throttler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Throttler{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
		clock:    clock,
	}
}

// Wait blocks until a dispatch is allowed and returns how long it waited.
// The slot is taken at the moment Wait returns, so a late wake-up pushes
// the next dispatch back instead of shortening the gap.
func (t *Throttler) Wait(ctx context.Context) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var waited time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return waited, err
		}
		now := t.clock.Now()
		if t.limiter.AllowN(now, 1) {
			return waited, nil
		}
		delay := time.Duration((1 - t.limiter.TokensAt(now)) * float64(t.interval))
		if delay <= 0 {
			// float rounding left the bucket a hair short of a token
			delay = time.Millisecond
		}
		if err := t.clock.Sleep(ctx, delay); err != nil {
			return waited, err
		}
		waited += delay
	}
}
