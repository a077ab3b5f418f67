package crawl

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"review_radar/internal/domain"
)

// RetryPolicy bounds how often one page is re-requested after a transient failure.
// Attempts counts retries, not the initial request.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
}

func DefaultRetry() RetryPolicy {
	return RetryPolicy{Attempts: 3, Base: time.Second}
}

// Delays returns the wait before each retry: Base, 2*Base, 4*Base, ...
func (p RetryPolicy) Delays() []time.Duration {
	if p.Attempts <= 0 {
		return nil
	}
	out := make([]time.Duration, p.Attempts)
	for i := range out {
		out[i] = time.Duration(1<<i) * p.Base
	}
	return out
}

type Outcome int

const (
	OutcomeTransient Outcome = iota
	OutcomeNotFound
	OutcomeCanceled
)

// Classify maps a fetch error to the paginator's reaction.
// Anything that is neither "not found" nor cancellation is retryable,
// including parse failures and non-2xx statuses other than 404.
func Classify(err error) Outcome {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeTransient
	}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

// TimerSleeper is the production Sleeper.
var TimerSleeper Sleeper = timerSleeper{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
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

// Politeness is the randomized pause inserted before every request.
type Politeness struct {
	Min, Max time.Duration
	// Rand returns a value in [0,1). Nil uses math/rand/v2.
	Rand func() float64
}

// Next draws a delay uniformly from [Min, Max].
func (p Politeness) Next() time.Duration {
	lo, hi := p.Min, p.Max
	if hi < lo {
		lo, hi = hi, lo
	}
	if hi <= 0 {
		return 0
	}
	if lo < 0 {
		lo = 0
	}
	r := p.Rand
	if r == nil {
		r = rand.Float64
	}
	return lo + time.Duration(r()*float64(hi-lo))
}
