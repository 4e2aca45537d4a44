package friends

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/kasuganosora/socialgraph/cache"
	"go.uber.org/zap"
)

// listCache holds short-lived friend list pages. Each user has a generation
// value that is part of every page key; bumping it drops all of the user's
// pages at once.
type listCache struct {
	c      cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func newListCache(c cache.Cache, ttl time.Duration, logger *zap.Logger) *listCache {
	return &listCache{c: c, ttl: ttl, logger: logger}
}

func (l *listCache) on() bool { return l.c != nil && l.ttl > 0 }

func genKey(user string) string { return "friends:gen:" + user }

func (l *listCache) pageKey(ctx context.Context, user, cursor string, limit int) (string, bool) {
	gen, err := l.c.Get(ctx, genKey(user))
	if err != nil && !cache.IsErrNotFound(err) {
		return "", false
	}
	if gen == "" {
		gen = "0"
	}
	return "friends:list:" + user + ":" + gen + ":" + strconv.Itoa(limit) + ":" + cursor, true
}

// get looks up a page. On a miss it returns the key the page must be stored
// under, bound to the generation seen now, so a page read before an
// invalidation is never filed under the newer generation. An empty key means
// the page is not to be cached.
func (l *listCache) get(ctx context.Context, user, cursor string, limit int) (*FriendPage, string) {
	if !l.on() {
		return nil, ""
	}
	key, ok := l.pageKey(ctx, user, cursor, limit)
	if !ok {
		return nil, ""
	}
	raw, err := l.c.Get(ctx, key)
	if err != nil {
		return nil, key
	}
	var p FriendPage
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, key
	}
	return &p, key
}

func (l *listCache) put(ctx context.Context, key string, p *FriendPage) {
	if key == "" {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := l.c.Set(ctx, key, string(raw), l.ttl); err != nil {
		l.logger.Debug("friend list cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate bumps the generation of each user. A failed bump leaves stale
// pages for at most one TTL.
func (l *listCache) invalidate(ctx context.Context, users ...string) {
	if !l.on() {
		return
	}
	// the mutation is committed; a departing caller must not skip this
	ctx = context.WithoutCancel(ctx)
	gen := strconv.FormatInt(time.Now().UnixNano(), 36)
	for _, u := range users {
		if err := l.c.Set(ctx, genKey(u), gen, 24*time.Hour); err != nil {
			l.logger.Warn("friend list cache invalidation failed", zap.String("user", u), zap.Error(err))
		}
	}
}
