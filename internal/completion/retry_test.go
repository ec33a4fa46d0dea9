package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_BoundedAttempts(t *testing.T) {
	policy := &RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	attempts := 0
	err := RetryWithBackoff(context.Background(), policy, func() error {
		attempts++
		return errors.New("timeout")
	}, IsTransientError)

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // first try plus two retries
	assert.Contains(t, err.Error(), "max retries (2) exceeded")
}

func TestRetryWithBackoff_StopsOnPermanentError(t *testing.T) {
	policy := &RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	attempts := 0
	err := RetryWithBackoff(context.Background(), policy, func() error {
		attempts++
		return errors.New("invalid credentials")
	}, IsTransientError)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_Cancellation(t *testing.T) {
	policy := &RetryPolicy{MaxRetries: 5, BaseDelay: 10 * time.Second, MaxDelay: 10 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := RetryWithBackoff(ctx, policy, func() error {
		return errors.New("timeout")
	}, IsTransientError)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsTransientError(t *testing.T) {
	assert.True(t, IsTransientError(errors.New("connection refused")))
	assert.True(t, IsTransientError(errors.New("429 Too Many Requests")))
	assert.True(t, IsTransientError(errors.New("i/o timeout")))
	assert.False(t, IsTransientError(errors.New("schema not understood")))
	assert.False(t, IsTransientError(nil))
}
