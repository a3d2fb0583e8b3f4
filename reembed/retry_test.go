package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff(t *testing.T) {
	persistent := errors.New("persistent error")

	tests := []struct {
		name         string
		maxAttempts  int
		failures     int // attempts that fail before success; -1 always fails
		wantErr      error
		wantAttempts int
	}{
		{"first try", 3, 0, nil, 1},
		{"eventual success", 5, 2, nil, 3},
		{"all attempts fail", 3, -1, persistent, 3},
		{"zero attempts", 0, -1, ErrInvalidMaxAttempts, 0},
		{"negative attempts", -1, -1, ErrInvalidMaxAttempts, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := RetryWithBackoff(context.Background(), nil, tt.maxAttempts, time.Millisecond, func(context.Context) error {
				attempts++
				if tt.failures < 0 || attempts <= tt.failures {
					return persistent
				}
				return nil
			})
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantAttempts, attempts)
		})
	}
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, nil, 10, 10*time.Millisecond, func(context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts, "should stop when context is canceled")
}

func TestRetryWithBackoff_ContextErrorNotRetried(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), nil, 5, time.Millisecond, func(context.Context) error {
		attempts++
		return context.DeadlineExceeded
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	attempts := 0
	var delays []time.Duration
	lastTime := time.Now()

	err := RetryWithBackoff(context.Background(), nil, 5, 10*time.Millisecond, func(context.Context) error {
		attempts++
		if attempts > 1 {
			delays = append(delays, time.Since(lastTime))
		}
		lastTime = time.Now()
		if attempts < 4 {
			return errors.New("error")
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, delays, 3)

	assert.GreaterOrEqual(t, delays[0], 10*time.Millisecond)
	assert.GreaterOrEqual(t, delays[1], 20*time.Millisecond)
	assert.GreaterOrEqual(t, delays[2], 40*time.Millisecond)
}
