// Package application contains the application services.
package application

import (
	"context"
	"math"
	"time"
)

// Backoff is a doubling delay schedule with an upper bound.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns the wait before the given retry (1 for the first retry).
// Without Max the delay saturates at the largest time.Duration.
func (b Backoff) Delay(retry int) time.Duration {
	if retry < 1 || b.Initial <= 0 {
		return 0
	}

	delay := b.Initial
	for i := 1; i < retry; i++ {
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
		} else {
			delay *= 2
		}
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}

	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

// waitFunc blocks for d or until ctx is done.
type waitFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
