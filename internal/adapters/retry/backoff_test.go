package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxRetries:      3,
		Multiplier:      2.0,
		JitterFraction:  0.2,
	}
}

func TestWithBackoffSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return &net.OpError{Op: "dial", Err: timeoutError{}}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithBackoffStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	permanent := errors.New("bad request")
	err := WithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		return permanent
	})
	assert.Error(t, err)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestWithBackoffExhaustsRetries(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), fastConfig(), func() error {
		attempts++
		return &net.OpError{Op: "dial", Err: timeoutError{}}
	})
	assert.Error(t, err)
	assert.Equal(t, 4, attempts) // initial + 3 retries
}

func TestWithBackoffRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithBackoff(ctx, fastConfig(), func() error {
		return &net.OpError{Op: "dial", Err: timeoutError{}}
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithBackoffHTTPRetriesOn5xx(t *testing.T) {
	attempts := 0
	err := WithBackoffHTTP(context.Background(), fastConfig(), func() (int, error) {
		attempts++
		if attempts < 2 {
			return http.StatusServiceUnavailable, nil
		}
		return http.StatusOK, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithBackoffHTTPStopsOn4xx(t *testing.T) {
	attempts := 0
	err := WithBackoffHTTP(context.Background(), fastConfig(), func() (int, error) {
		attempts++
		return http.StatusUnauthorized, nil
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	assert.True(t, IsRetryableHTTPStatus(http.StatusTooManyRequests))
	assert.True(t, IsRetryableHTTPStatus(http.StatusBadGateway))
	assert.True(t, IsRetryableHTTPStatus(http.StatusRequestTimeout))
	assert.False(t, IsRetryableHTTPStatus(http.StatusBadRequest))
	assert.False(t, IsRetryableHTTPStatus(http.StatusNotFound))
}

func TestIsRetryableErrorContextCancellation(t *testing.T) {
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(context.DeadlineExceeded))
	assert.False(t, IsRetryableError(nil))
}

func TestJitterStaysWithinBounds(t *testing.T) {
	cfg := BackoffConfig{JitterFraction: 0.2}
	base := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := cfg.jittered(base)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
