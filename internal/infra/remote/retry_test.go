package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
)

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(_ analysis.Level, msg string) {
	n.messages = append(n.messages, msg)
}

func noSleep(times *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*times = append(*times, d)
		return nil
	}
}

func TestRetrierStopsAfterMaxRetries(t *testing.T) {
	notifier := &recordingNotifier{}
	r := NewRetrier(2, notifier)
	var waits []time.Duration
	r.Sleep = noSleep(&waits)

	calls := 0
	err := r.Do(context.Background(), "analyze", func(context.Context) error {
		calls++
		return &RateLimitError{RetryAfter: 30 * time.Second}
	})

	if !errors.Is(err, analysis.ErrRateLimited) {
		t.Fatalf("expected rate-limit failure, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected initial attempt + 2 retries = 3 calls, got %d", calls)
	}
	if len(waits) != 2 {
		t.Fatalf("expected 2 backoff waits, got %d", len(waits))
	}
	if waits[0] != 30*time.Second {
		t.Fatalf("expected the service-requested delay, got %s", waits[0])
	}
	// every wait plus the final exhaustion must have been announced
	if len(notifier.messages) != 3 {
		t.Fatalf("expected 3 notifications, got %v", notifier.messages)
	}
}

func TestRetrierQuotaIsTerminal(t *testing.T) {
	notifier := &recordingNotifier{}
	r := NewRetrier(2, notifier)
	var waits []time.Duration
	r.Sleep = noSleep(&waits)

	calls := 0
	err := r.Do(context.Background(), "analyze", func(context.Context) error {
		calls++
		return &QuotaError{Detail: "token limit reached"}
	})

	if !errors.Is(err, analysis.ErrQuotaExceeded) {
		t.Fatalf("expected quota failure, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("quota must never be retried, got %d calls", calls)
	}
	if len(waits) != 0 {
		t.Fatalf("expected no backoff waits, got %v", waits)
	}
}

func TestRetrierRecoversWithinBound(t *testing.T) {
	r := NewRetrier(2, nil)
	var waits []time.Duration
	r.Sleep = noSleep(&waits)

	calls := 0
	err := r.Do(context.Background(), "extract", func(context.Context) error {
		calls++
		if calls == 1 {
			return &RateLimitError{RetryAfter: time.Second}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success on the second attempt, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetrierDoesNotRetryOtherFailures(t *testing.T) {
	r := NewRetrier(2, nil)
	var waits []time.Duration
	r.Sleep = noSleep(&waits)

	boom := &ServiceError{StatusCode: 500, Detail: "internal"}
	calls := 0
	err := r.Do(context.Background(), "analyze", func(context.Context) error {
		calls++
		return boom
	})

	if !errors.Is(err, boom) {
		t.Fatalf("expected the service error back, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("generic failures are terminal, got %d calls", calls)
	}
}

func TestRetrierHonorsCancelledBackoff(t *testing.T) {
	r := NewRetrier(2, nil)
	r.Sleep = func(context.Context, time.Duration) error {
		return context.Canceled
	}

	calls := 0
	err := r.Do(context.Background(), "analyze", func(context.Context) error {
		calls++
		return &RateLimitError{RetryAfter: time.Minute}
	})

	if !errors.Is(err, analysis.ErrRateLimited) {
		t.Fatalf("expected the rate-limit failure to surface, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("cancelled backoff must not re-issue the call, got %d calls", calls)
	}
}
