package friends_test

import (
	"sync"
	"testing"
	"time"

	"github.com/kasuganosora/socialgraph/config"
	"github.com/kasuganosora/socialgraph/friends"
	"github.com/kasuganosora/socialgraph/identity"
	"github.com/kasuganosora/socialgraph/notify"
	"github.com/kasuganosora/socialgraph/ratelimit"
	"github.com/kasuganosora/socialgraph/store"
	"github.com/kasuganosora/socialgraph/testutil"
	"gorm.io/gorm"
)

const (
	alice = "alice@local.example"
	bob   = "bob@remote.example"
	carol = "carol@local.example"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type federated struct {
	ev     notify.Event
	domain string
}

type recorder struct {
	mu     sync.Mutex
	local  []notify.Event
	remote []federated
}

func (r *recorder) Notify(ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = append(r.local, ev)
}

func (r *recorder) Federate(ev notify.Event, domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remote = append(r.remote, federated{ev: ev, domain: domain})
}

func (r *recorder) localTypes() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, len(r.local))
	for i, ev := range r.local {
		out[i] = ev.Type
	}
	return out
}

type harness struct {
	*friends.Service
	db    *gorm.DB
	store *store.Store
	clock *clock
	notes *recorder
}

func newHarness(t *testing.T, tune ...func(*config.FriendsConfig)) *harness {
	t.Helper()
	cfg := config.Default().Friends
	for _, fn := range tune {
		fn(&cfg)
	}

	db := testutil.SetupTestDB(t)
	st := store.New(db, 5*time.Second)
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	lim := ratelimit.NewLocalLimiter(ratelimit.PoliciesFromConfig(cfg.RateLimiting))
	lim.SetClock(clk.Now)
	t.Cleanup(lim.Close)
	notes := &recorder{}

	svc := friends.New(cfg, friends.Deps{
		Store:      st,
		Resolver:   identity.NewResolver("local.example"),
		Limiter:    lim,
		Cache:      testutil.SetupTestCache(t).Cache,
		Notifier:   notes,
		Federation: notes,
		Now:        clk.Now,
	})
	return &harness{Service: svc, db: db, store: st, clock: clk, notes: notes}
}
