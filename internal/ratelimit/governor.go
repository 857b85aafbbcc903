// Package ratelimit centralizes handling of the platform's rate-limit
// condition. Every transport call on the mirroring path runs under Guard.
package ratelimit

import (
	"context"
	"time"

	apperrors "github.com/channel-mirror/internal/errors"
	"github.com/channel-mirror/internal/logging"
)

// StatusFunc receives a human-readable note each time the governor suspends.
type StatusFunc func(wait time.Duration)

// Governor resolves rate-limit conditions by suspending for the mandated wait
// and re-invoking the operation. Rate-limit pauses are unbounded in count: the
// platform may throttle the same operation repeatedly and the governor obeys
// each mandate in turn.
type Governor struct {
	log      *logging.Logger
	onPause  StatusFunc
	maxPause time.Duration
}

// Option configures a Governor.
type Option func(*Governor)

// WithStatusFunc installs a callback invoked before each suspension.
func WithStatusFunc(fn StatusFunc) Option {
	return func(g *Governor) { g.onPause = fn }
}

// WithMaxPause caps a single suspension. Zero means no cap.
func WithMaxPause(d time.Duration) Option {
	return func(g *Governor) { g.maxPause = d }
}

// NewGovernor creates a rate governor.
func NewGovernor(log *logging.Logger, opts ...Option) *Governor {
	g := &Governor{log: log}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = logging.Default()
	}
	return g
}

// Guard runs op, absorbing rate-limit conditions. On a rate-limit error it
// waits the mandated duration and runs op again; any other error (and nil)
// returns immediately. The pause never consumes retry budget and the caller's
// position never advances during it.
func (g *Governor) Guard(ctx context.Context, op func() error) error {
	for {
		err := op()
		wait, ok := apperrors.IsRateLimited(err)
		if !ok {
			return err
		}

		if g.maxPause > 0 && wait > g.maxPause {
			wait = g.maxPause
		}
		g.log.WithField("wait", wait.String()).Warn("rate limited, pausing")
		if g.onPause != nil {
			g.onPause(wait)
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
