package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestWithRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	got, err := withRetry(context.Background(), RetryPolicy{Attempts: 3, Base: time.Millisecond}, "test",
		func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("connection reset")
			}
			return 7, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 3, calls)
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), RetryPolicy{Attempts: 2, Base: time.Millisecond}, "test",
		func(context.Context) (int, error) {
			calls++
			return 0, errors.New("connection refused")
		})
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, 2, calls)
}

func TestWithRetrySkipsNotFound(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), RetryPolicy{Attempts: 5, Base: time.Millisecond}, "test",
		func(context.Context) (int, error) {
			calls++
			return 0, gorm.ErrRecordNotFound
		})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Equal(t, 1, calls)
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := withRetry(ctx, RetryPolicy{Attempts: 5, Base: time.Hour}, "test",
		func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, errors.New("timeout")
		})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyNormalized(t *testing.T) {
	p := RetryPolicy{Attempts: 0, Base: -time.Second}.normalized()
	assert.Equal(t, 1, p.Attempts)
	assert.Equal(t, time.Duration(0), p.Base)
}
