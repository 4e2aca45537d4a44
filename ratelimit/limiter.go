// Package ratelimit gates mutating relationship actions per (actor, action).
//
// Two backends implement Limiter: RedisLimiter shares a sliding window between
// processes, LocalLimiter keeps it in memory. FallbackLimiter puts the local
// one behind the Redis one and logs when limits degrade to per-process.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/kasuganosora/socialgraph/config"
)

// Action classes.
const (
	ActionSendRequest = "send_request"
	ActionRespond     = "respond"
	ActionBlock       = "block"
)

// Decision is the outcome of one admission check. Ticket names the consumed
// slot of an admitted call and is passed back to Release.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Ticket     string
}

// Policy is a rolling window of Limit admissions per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Limiter admits or rejects one action by actor. An admitted call consumes a
// slot; a rejected one does not. err is non-nil only when the backend failed.
//
// Release returns the slot of an admitted call whose action did not take
// effect. Releasing an unknown or already released ticket is a no-op.
type Limiter interface {
	Admit(ctx context.Context, actor, action string) (Decision, error)
	Release(ctx context.Context, actor, action, ticket string) error
}

// Policies maps action classes to their windows.
type Policies map[string]Policy

// PoliciesFromConfig builds the per-action policies from the friends config.
func PoliciesFromConfig(cfg config.RateLimitingConfig) Policies {
	return Policies{
		ActionSendRequest: {Limit: cfg.MaxRequestsPerHour, Window: cfg.Window},
		ActionRespond:     {Limit: cfg.MaxResponsesPerHour, Window: cfg.Window},
		ActionBlock:       {Limit: cfg.MaxBlocksPerHour, Window: cfg.Window},
	}
}

func (p Policies) lookup(action string) (Policy, error) {
	pol, ok := p[action]
	if !ok || pol.Limit <= 0 || pol.Window <= 0 {
		return Policy{}, fmt.Errorf("ratelimit: no policy for action %q", action)
	}
	return pol, nil
}

func key(actor, action string) string {
	return "friends:rl:" + action + ":" + actor
}
