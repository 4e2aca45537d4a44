package ratelimit

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// FallbackLimiter consults primary and, when it fails, the local limiter.
// While degraded, limits are enforced per process and a warning is logged on
// each transition.
type FallbackLimiter struct {
	primary  Limiter
	local    Limiter
	logger   *zap.Logger
	degraded atomic.Bool
}

// NewFallbackLimiter wires primary in front of local.
func NewFallbackLimiter(primary, local Limiter, logger *zap.Logger) *FallbackLimiter {
	return &FallbackLimiter{primary: primary, local: local, logger: logger}
}

// Degraded reports whether the last primary call failed.
func (f *FallbackLimiter) Degraded() bool { return f.degraded.Load() }

func (f *FallbackLimiter) Admit(ctx context.Context, actor, action string) (Decision, error) {
	d, err := f.primary.Admit(ctx, actor, action)
	if err == nil {
		if f.degraded.CompareAndSwap(true, false) {
			f.logger.Info("rate limiter: shared backend recovered, global limits restored")
		}
		return d, nil
	}
	if ctx.Err() != nil {
		return Decision{}, ctx.Err()
	}
	if f.degraded.CompareAndSwap(false, true) {
		f.logger.Warn("rate limiter: shared backend unavailable, limits now enforced per process",
			zap.Error(err))
	}
	d, err = f.local.Admit(ctx, actor, action)
	if d.Allowed {
		d.Ticket = localTicket + d.Ticket
	}
	return d, err
}

// localTicket marks slots taken from the local limiter so Release finds
// them after the primary recovers.
const localTicket = "local:"

func (f *FallbackLimiter) Release(ctx context.Context, actor, action, ticket string) error {
	if t, ok := strings.CutPrefix(ticket, localTicket); ok {
		return f.local.Release(ctx, actor, action, t)
	}
	return f.primary.Release(ctx, actor, action, ticket)
}
