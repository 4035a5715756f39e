package crawl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type permanentNetErr struct{}

func (permanentNetErr) Error() string   { return "connection refused" }
func (permanentNetErr) Timeout() bool   { return false }
func (permanentNetErr) Temporary() bool { return false }

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, 10*time.Millisecond, 100*time.Millisecond)

	require.False(t, p.ShouldRetry(nil, 0))
	require.True(t, p.ShouldRetry(context.DeadlineExceeded, 0))
	require.False(t, p.ShouldRetry(context.Canceled, 0))
	require.True(t, p.ShouldRetry(timeoutErr{}, 0))
	require.False(t, p.ShouldRetry(permanentNetErr{}, 0))
	require.True(t, p.ShouldRetry(errors.New("read: reset"), 0))

	// Exhausted budget.
	require.False(t, p.ShouldRetry(context.DeadlineExceeded, 3))
	require.False(t, p.ShouldRetry(context.DeadlineExceeded, 7))
}

func TestShouldRetryZeroBudget(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(0, 10*time.Millisecond, 100*time.Millisecond)
	require.False(t, p.ShouldRetry(context.DeadlineExceeded, 0))
}

func TestBackoffBounds(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	maxDelay := 1 * time.Second
	p := NewExponentialRetryPolicy(5, base, maxDelay)

	for attempt := 0; attempt < 8; attempt++ {
		for i := 0; i < 20; i++ {
			d := p.Backoff(attempt)
			require.GreaterOrEqual(t, d, time.Duration(0))
			require.LessOrEqual(t, d, maxDelay)
		}
	}
}

func TestBackoffGrows(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(5, 100*time.Millisecond, 10*time.Second)

	// The jittered delay stays within [delay/2, delay), so attempt 3's
	// floor exceeds attempt 0's ceiling.
	require.Greater(t, p.Backoff(3), p.Backoff(0))
}
