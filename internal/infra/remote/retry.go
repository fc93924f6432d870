package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

const DefaultMaxRetries = 2

// SleepFunc suspends the calling task; injectable supaya gampang ditest.
type SleepFunc func(ctx context.Context, d time.Duration) error

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier wraps exactly one logical remote operation with the rate-limit
// retry policy. Quota, transport and protocol failures are terminal on the
// first attempt; only rate limits are re-issued, up to MaxRetries times,
// and every wait is announced through the notifier so it is never silent.
type Retrier struct {
	MaxRetries int
	Notifier   analysis.Notifier
	Sleep      SleepFunc
}

func NewRetrier(maxRetries int, notifier analysis.Notifier) *Retrier {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Retrier{MaxRetries: maxRetries, Notifier: notifier, Sleep: ctxSleep}
}

// Do runs call, re-issuing it after the service-requested delay on each
// rate-limit response. op names the logical operation for notifications.
func (r *Retrier) Do(ctx context.Context, op string, call func(context.Context) error) error {
	sleep := r.Sleep
	if sleep == nil {
		sleep = ctxSleep
	}

	for attempt := 0; ; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}

		if errors.Is(err, analysis.ErrQuotaExceeded) {
			r.notify(analysis.LevelError, fmt.Sprintf("%s: quota exceeded, not retrying: %v", op, err))
			return err
		}

		var rl *RateLimitError
		if !errors.As(err, &rl) {
			return err
		}
		if attempt >= r.MaxRetries {
			r.notify(analysis.LevelError, fmt.Sprintf("%s: still rate limited after %d retries", op, r.MaxRetries))
			return err
		}

		r.notify(analysis.LevelWarn, fmt.Sprintf("%s: rate limited, retry %d/%d in %s", op, attempt+1, r.MaxRetries, rl.RetryAfter))
		if serr := sleep(ctx, rl.RetryAfter); serr != nil {
			return err
		}
	}
}

func (r *Retrier) notify(level analysis.Level, msg string) {
	if r.Notifier != nil {
		r.Notifier.Notify(level, msg)
	}
}
