package services

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RetryPolicy is exponential backoff for store reads.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Base < 0 {
		p.Base = 0
	}
	return p
}

func retryable(err error) bool {
	return !eris.Is(err, gorm.ErrRecordNotFound) &&
		!eris.Is(err, context.Canceled) &&
		!eris.Is(err, context.DeadlineExceeded)
}

// withRetry runs fn until it succeeds, returns a non-retryable error, runs
// out of attempts or ctx ends. The delay doubles after each failure.
func withRetry[T any](ctx context.Context, p RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	delay := p.Base
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if attempt >= p.Attempts || !retryable(err) || ctx.Err() != nil {
			return zero, err
		}

		zap.L().Warn("store: read failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
		delay *= 2
	}
}
