package retry

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetryer_ZeroAttemptsMeansOne(t *testing.T) {
	r := NewRetryer(0, time.Millisecond, time.Second)
	assert.Equal(t, uint(1), r.MaxAttempts())
}

func TestRetryer_Do_SuccessOnFirstAttempt(t *testing.T) {
	r := NewRetryer(3, 10*time.Millisecond, time.Second)

	called := 0
	err := r.Do(context.Background(), func(context.Context) (bool, error) {
		called++
		return false, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, called)
}

func TestRetryer_Do_SuccessAfterRetries(t *testing.T) {
	r := NewRetryer(3, time.Millisecond, 10*time.Millisecond)

	attempts := 0
	err := r.Do(context.Background(), func(context.Context) (bool, error) {
		attempts++
		if attempts < 3 {
			return true, errors.New("temporary error")
		}
		return false, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryer_Do_ExhaustedWrapsAttemptsAndCause(t *testing.T) {
	r := NewRetryer(3, time.Millisecond, 5*time.Millisecond)

	cause := errors.New("persistent error")
	attempts := 0
	err := r.Do(context.Background(), func(context.Context) (bool, error) {
		attempts++
		return true, cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 3, rerr.Attempts)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetryer_Do_NonRetryableStopsImmediately(t *testing.T) {
	r := NewRetryer(5, time.Millisecond, 5*time.Millisecond)

	cause := errors.New("bad request")
	attempts := 0
	err := r.Do(context.Background(), func(context.Context) (bool, error) {
		attempts++
		return false, cause
	})

	assert.Equal(t, 1, attempts)
	assert.Same(t, cause, err)
}

func TestRetryer_Do_NonRetryableAfterRetryKeepsCount(t *testing.T) {
	r := NewRetryer(5, time.Millisecond, 5*time.Millisecond)

	final := errors.New("not found")
	attempts := 0
	err := r.Do(context.Background(), func(context.Context) (bool, error) {
		attempts++
		if attempts == 1 {
			return true, errors.New("timeout")
		}
		return false, final
	})

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 2, rerr.Attempts)
	assert.ErrorIs(t, err, final)
}

func TestRetryer_Do_ContextCancelledBeforeFirstAttempt(t *testing.T) {
	r := NewRetryer(3, 100*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := 0
	err := r.Do(ctx, func(context.Context) (bool, error) {
		called++
		return true, errors.New("should not be called")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, called)
}

func TestRetryer_Do_ContextCancelledDuringBackoff(t *testing.T) {
	r := NewRetryer(5, 200*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	cause := errors.New("temporary error")
	attempts := 0
	start := time.Now()
	err := r.Do(ctx, func(context.Context) (bool, error) {
		attempts++
		return true, cause
	})

	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 1, attempts)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 1, rerr.Attempts)
	assert.ErrorIs(t, err, cause)
}

func TestRetryer_Backoff(t *testing.T) {
	r := NewRetryer(5, 100*time.Millisecond, time.Second)

	testCases := []struct {
		name     string
		attempt  uint
		expected time.Duration
	}{
		{"Attempt 0", 0, 100 * time.Millisecond},
		{"Attempt 1", 1, 200 * time.Millisecond},
		{"Attempt 2", 2, 400 * time.Millisecond},
		{"Attempt 3", 3, 800 * time.Millisecond},
		{"Attempt 4", 4, time.Second},
		{"Attempt 40", 40, time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, r.Backoff(tc.attempt))
		})
	}
}

func TestRetryer_Backoff_LargeBaseDelayStaysCapped(t *testing.T) {
	r := NewRetryer(5, 2*time.Hour, 24*time.Hour)

	for attempt := uint(0); attempt < 70; attempt++ {
		d := r.Backoff(attempt)
		assert.Positive(t, d, "attempt %d", attempt)
		assert.LessOrEqual(t, d, 24*time.Hour, "attempt %d", attempt)
	}
	assert.Equal(t, 16*time.Hour, r.Backoff(3))
	assert.Equal(t, 24*time.Hour, r.Backoff(35))

	huge := NewRetryer(3, time.Duration(math.MaxInt64/4), time.Duration(math.MaxInt64))
	assert.Equal(t, time.Duration(math.MaxInt64/4)<<1, huge.Backoff(1))
	assert.Equal(t, time.Duration(math.MaxInt64/4)<<2, huge.Backoff(2))
	assert.Equal(t, time.Duration(math.MaxInt64), huge.Backoff(3))
	assert.Equal(t, time.Duration(math.MaxInt64), huge.Backoff(62))
}
