package optimize

import (
	"context"
	"time"
)

// RetryPolicy is a fixed-count, fixed-delay wait loop. Sleep is injectable
// so tests run against a fake clock instead of real delays.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// DefaultPollPolicy waits out CDN propagation after fileCreate: 5 lookups
// spaced 2 seconds apart.
func DefaultPollPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Delay: 2000 * time.Millisecond}
}

// Do sleeps Delay then calls check, up to MaxAttempts times, stopping as
// soon as check reports done. Returns (false, nil) when attempts exhaust
// without success and (false, ctx.Err()) when the context ends first.
func (p RetryPolicy) Do(ctx context.Context, check func(ctx context.Context) (bool, error)) (bool, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	for i := 0; i < p.MaxAttempts; i++ {
		if err := sleep(ctx, p.Delay); err != nil {
			return false, err
		}
		done, err := check(ctx)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
