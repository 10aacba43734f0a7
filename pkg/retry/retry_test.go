package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Astemirdum/library-catalog/pkg/retry"
)

var errTransient = errors.New("transient")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestWithExponentialBackoff(t *testing.T) {
	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := retry.WithExponentialBackoff(context.Background(), func(context.Context) error {
			calls++
			return nil
		}, retry.WithRetryable(isTransient))
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient errors until success", func(t *testing.T) {
		calls := 0
		var retried []int
		err := retry.WithExponentialBackoff(context.Background(), func(context.Context) error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		},
			retry.WithRetryable(isTransient),
			retry.WithBaseDelay(time.Millisecond),
			retry.WithOnRetry(func(attempt int, _ error) { retried = append(retried, attempt) }),
		)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := retry.WithExponentialBackoff(context.Background(), func(context.Context) error {
			calls++
			return errTransient
		},
			retry.WithRetryable(isTransient),
			retry.WithMaxAttempts(4),
			retry.WithBaseDelay(time.Millisecond),
		)
		require.ErrorIs(t, err, errTransient)
		assert.Equal(t, 4, calls)
	})

	t.Run("permanent error fails fast", func(t *testing.T) {
		permanent := errors.New("permanent")
		calls := 0
		err := retry.WithExponentialBackoff(context.Background(), func(context.Context) error {
			calls++
			return permanent
		}, retry.WithRetryable(isTransient))
		require.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := retry.WithExponentialBackoff(ctx, func(context.Context) error {
			calls++
			cancel()
			return errTransient
		},
			retry.WithRetryable(isTransient),
			retry.WithBaseDelay(time.Second),
		)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestOptionsValidation(t *testing.T) {
	noop := func(context.Context) error { return nil }
	tests := []struct {
		name string
		opt  retry.Option
		want error
	}{
		{"zero attempts", retry.WithMaxAttempts(0), retry.ErrInvalidMaxAttempts},
		{"negative delay", retry.WithBaseDelay(-time.Second), retry.ErrNegativeBaseDelay},
		{"jitter too big", retry.WithJitterFactor(1.5), retry.ErrInvalidJitterFactor},
		{"nil classifier", retry.WithRetryable(nil), retry.ErrNilClassifier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := retry.WithExponentialBackoff(context.Background(), noop, tt.opt)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
