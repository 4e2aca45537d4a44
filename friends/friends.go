// Package friends is the relationship lifecycle engine: friend requests,
// friendships, blocks and the read side over them.
package friends

import (
	"context"
	"fmt"
	"time"

	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/config"
	"github.com/kasuganosora/socialgraph/errs"
	"github.com/kasuganosora/socialgraph/identity"
	"github.com/kasuganosora/socialgraph/notify"
	"github.com/kasuganosora/socialgraph/ratelimit"
	"github.com/kasuganosora/socialgraph/store"
	"github.com/kasuganosora/socialgraph/trace"
	"go.uber.org/zap"
)

// Notifier receives user notifications. Implementations must not block.
type Notifier interface {
	Notify(ev notify.Event)
}

// Federation hands events to the transport for a remote domain.
// Implementations must not block.
type Federation interface {
	Federate(ev notify.Event, domain string)
}

// Auditor records transitions.
type Auditor interface {
	Log(entry audit.Entry)
}

// Deps are the collaborators of the engine. Cache, Notifier, Federation and
// Auditor are optional.
type Deps struct {
	Store      *store.Store
	Resolver   *identity.Resolver
	Limiter    ratelimit.Limiter
	Cache      cache.Cache
	Notifier   Notifier
	Federation Federation
	Auditor    Auditor
	Logger     *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service bundles the three faces of the engine.
type Service struct {
	Requests *Engine
	Blocks   *Blocking
	Query    *Query
}

// New builds the engine.
func New(cfg config.FriendsConfig, deps Deps) *Service {
	b := &base{cfg: cfg, Deps: deps}
	if b.Logger == nil {
		b.Logger = zap.NewNop()
	}
	if b.Now == nil {
		b.Now = time.Now
	}
	b.lists = newListCache(deps.Cache, cfg.List.CacheTTL, b.Logger)
	return &Service{
		Requests: &Engine{b},
		Blocks:   &Blocking{b},
		Query:    &Query{b},
	}
}

type base struct {
	Deps
	cfg   config.FriendsConfig
	lists *listCache
}

// now returns the current UTC time at millisecond precision, the finest
// precision every supported store keeps.
func (b *base) now() time.Time {
	return b.Now().UTC().Truncate(time.Millisecond)
}

func (b *base) enabled(feature bool, name string) error {
	if !b.cfg.Enabled || !feature {
		return fmt.Errorf("%w: %s", errs.ErrFeatureDisabled, name)
	}
	return nil
}

// pair resolves actor and other and rejects self references.
func (b *base) pair(actor, other string) (identity.ID, identity.ID, error) {
	a, err := b.Resolver.Resolve(actor)
	if err != nil {
		return "", "", err
	}
	o, err := b.Resolver.Resolve(other)
	if err != nil {
		return "", "", err
	}
	if a == o {
		return "", "", fmt.Errorf("%w: %s", errs.ErrSelfReference, a)
	}
	return a, o, nil
}

// slot is a rate-limit admission held until the action commits.
type slot struct {
	actor, action, ticket string
}

// admit consults the rate limiter for actor.
func (b *base) admit(ctx context.Context, actor identity.ID, action string) (*slot, error) {
	d, err := b.Limiter.Admit(ctx, actor.String(), action)
	if err != nil {
		return nil, errs.Unavailable("ratelimit."+action, err)
	}
	if !d.Allowed {
		return nil, &errs.RateLimitedError{Action: action, RetryAfter: d.RetryAfter}
	}
	return &slot{actor: actor.String(), action: action, ticket: d.Ticket}, nil
}

// refund gives back s when its action did not take effect. A nil s is a
// no-op.
func (b *base) refund(ctx context.Context, s *slot) {
	if s == nil {
		return
	}
	if err := b.Limiter.Release(context.WithoutCancel(ctx), s.actor, s.action, s.ticket); err != nil {
		b.Logger.Warn("rate limit slot not released",
			zap.String("actor", s.actor), zap.String("action", s.action), zap.Error(err))
	}
}

// emit delivers ev to a local recipient as a notification, or to the
// recipient's domain through federation.
func (b *base) emit(ev notify.Event) {
	id := identity.ID(ev.Recipient)
	if b.Resolver.IsLocal(id) {
		if b.Notifier != nil {
			b.Notifier.Notify(ev)
		}
		return
	}
	if b.Federation != nil {
		b.Federation.Federate(ev, id.Domain())
	}
}

func (b *base) audit(ctx context.Context, e audit.Entry) {
	if b.Auditor == nil {
		return
	}
	if e.TraceID == "" {
		e.TraceID = trace.ID(ctx)
	}
	b.Auditor.Log(e)
}
