package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/channel-mirror/internal/errors"
	"github.com/channel-mirror/internal/logging"
)

func testGovernor(opts ...Option) *Governor {
	return NewGovernor(logging.New(logging.LevelError, logging.FormatText), opts...)
}

func TestGuardPassesThroughSuccess(t *testing.T) {
	calls := 0
	err := testGovernor().Guard(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestGuardPassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := testGovernor().Guard(context.Background(), func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestGuardResolvesRateLimit(t *testing.T) {
	var pauses []time.Duration
	gov := testGovernor(WithStatusFunc(func(wait time.Duration) {
		pauses = append(pauses, wait)
	}))

	calls := 0
	err := gov.Guard(context.Background(), func() error {
		calls++
		if calls < 3 {
			return apperrors.NewRateLimited(5 * time.Millisecond)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}, pauses)
}

func TestGuardHonorsMaxPause(t *testing.T) {
	var pauses []time.Duration
	gov := testGovernor(
		WithMaxPause(2*time.Millisecond),
		WithStatusFunc(func(wait time.Duration) { pauses = append(pauses, wait) }),
	)

	calls := 0
	err := gov.Guard(context.Background(), func() error {
		calls++
		if calls == 1 {
			return apperrors.NewRateLimited(time.Hour)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, pauses, 1)
	assert.Equal(t, 2*time.Millisecond, pauses[0])
}

func TestGuardAbortsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := testGovernor().Guard(ctx, func() error {
		return apperrors.NewRateLimited(time.Hour)
	})
	assert.ErrorIs(t, err, context.Canceled)
}
