package friends

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/socialgraph/errs"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/store"
)

// Query is the read side. It never consults the rate limiter.
type Query struct{ *base }

// Friend is one entry of a friend list.
type Friend struct {
	UserID string    `json:"user_id"`
	Since  time.Time `json:"since"`
}

// FriendPage is a page of friends, newest first.
type FriendPage struct {
	Friends    []Friend `json:"friends"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// RequestPage is a page of pending requests, newest first.
type RequestPage struct {
	Requests   []model.FriendRequest `json:"requests"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

// BlockedUser is one entry of a block list.
type BlockedUser struct {
	UserID    string    `json:"user_id"`
	BlockedAt time.Time `json:"blocked_at"`
}

// BlockPage is a page of blocked users, newest first.
type BlockPage struct {
	Blocked    []BlockedUser `json:"blocked"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// Candidate is a search result.
type Candidate struct {
	UserID            string `json:"user_id"`
	DisplayName       string `json:"display_name"`
	IsFriend          bool   `json:"is_friend"`
	HasPendingRequest bool   `json:"has_pending_request"`
}

func (q *Query) limit(n int) (int, error) {
	switch {
	case n < 0:
		return 0, fmt.Errorf("%w: negative limit", errs.ErrInvalidArgument)
	case n == 0:
		return q.cfg.List.DefaultLimit, nil
	case n > q.cfg.List.MaxLimit:
		return q.cfg.List.MaxLimit, nil
	}
	return n, nil
}

// ListFriends returns user's friends. Pages may be served from a cache that
// lags writes by at most the list cache TTL.
func (q *Query) ListFriends(ctx context.Context, user, cursor string, limit int) (*FriendPage, error) {
	if err := q.enabled(true, "friends"); err != nil {
		return nil, err
	}
	id, err := q.Resolver.Resolve(user)
	if err != nil {
		return nil, err
	}
	if limit, err = q.limit(limit); err != nil {
		return nil, err
	}
	cached, key := q.lists.get(ctx, id.String(), cursor, limit)
	if cached != nil {
		return cached, nil
	}

	rows, next, err := q.Store.ListFriendships(ctx, id.String(), store.Page{Cursor: cursor, Limit: limit})
	if err != nil {
		return nil, err
	}
	p := &FriendPage{Friends: make([]Friend, len(rows)), NextCursor: next}
	for i, f := range rows {
		p.Friends[i] = Friend{UserID: f.Other(id.String()), Since: f.CreatedAt}
	}
	q.lists.put(ctx, key, p)
	return p, nil
}

// ListPending returns user's live pending requests in the given direction,
// "sent" or "received". Expired rows of the user are reaped first.
func (q *Query) ListPending(ctx context.Context, user, direction, cursor string, limit int) (*RequestPage, error) {
	if err := q.enabled(q.cfg.Requests.Enabled, "friend requests"); err != nil {
		return nil, err
	}
	id, err := q.Resolver.Resolve(user)
	if err != nil {
		return nil, err
	}
	dir := store.Direction(direction)
	if dir != store.Sent && dir != store.Received {
		return nil, fmt.Errorf("%w: direction %q, want sent or received", errs.ErrInvalidArgument, direction)
	}
	if limit, err = q.limit(limit); err != nil {
		return nil, err
	}

	now := q.now()
	if _, err := q.Store.ExpirePending(ctx, now, id.String()); err != nil {
		return nil, err
	}
	rows, next, err := q.Store.ListPending(ctx, id.String(), dir, now, store.Page{Cursor: cursor, Limit: limit})
	if err != nil {
		return nil, err
	}
	return &RequestPage{Requests: rows, NextCursor: next}, nil
}

// ListBlocked returns the users blocker has blocked.
func (q *Query) ListBlocked(ctx context.Context, blocker, cursor string, limit int) (*BlockPage, error) {
	if err := q.enabled(q.cfg.Blocking.Enabled, "blocking"); err != nil {
		return nil, err
	}
	id, err := q.Resolver.Resolve(blocker)
	if err != nil {
		return nil, err
	}
	if limit, err = q.limit(limit); err != nil {
		return nil, err
	}
	rows, next, err := q.Store.ListBlocks(ctx, id.String(), store.Page{Cursor: cursor, Limit: limit})
	if err != nil {
		return nil, err
	}
	p := &BlockPage{Blocked: make([]BlockedUser, len(rows)), NextCursor: next}
	for i, b := range rows {
		p.Blocked[i] = BlockedUser{UserID: b.BlockedID, BlockedAt: b.CreatedAt}
	}
	return p, nil
}

// SearchCandidates finds accounts by partial id or display name. The
// requester, accounts that blocked the requester and accounts that opted out
// of discovery are excluded.
func (q *Query) SearchCandidates(ctx context.Context, query, requester string, limit int) ([]Candidate, error) {
	if err := q.enabled(q.cfg.Search.Enabled, "search"); err != nil {
		return nil, err
	}
	if err := q.enabled(q.cfg.Privacy.AllowFriendDiscovery, "friend discovery"); err != nil {
		return nil, err
	}
	id, err := q.Resolver.Resolve(requester)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if n := utf8.RuneCountInString(query); n < q.cfg.Search.MinCharacters {
		return nil, fmt.Errorf("%w: query needs at least %d characters", errs.ErrInvalidArgument, q.cfg.Search.MinCharacters)
	}
	if limit <= 0 || limit > q.cfg.Search.ResultLimit {
		limit = q.cfg.Search.ResultLimit
	}

	rows, err := q.Store.SearchAccounts(ctx, store.SearchFilter{
		Query:            query,
		Requester:        id.String(),
		OnlyDiscoverable: true,
		Limit:            limit,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, a := range rows {
		ids[i] = a.UserID
	}
	friends, err := q.Store.FriendsAmong(ctx, id.String(), ids)
	if err != nil {
		return nil, err
	}
	pending, err := q.Store.PendingAmong(ctx, id.String(), ids)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, len(rows))
	for i, a := range rows {
		out[i] = Candidate{
			UserID:            a.UserID,
			DisplayName:       a.DisplayName,
			IsFriend:          friends[a.UserID],
			HasPendingRequest: pending[a.UserID],
		}
	}
	return out, nil
}

// UpdateProfile sets user's discoverability and, when displayName is not
// empty, the name shown in search results.
func (q *Query) UpdateProfile(ctx context.Context, user, displayName string, discoverable bool) error {
	id, err := q.Resolver.Resolve(user)
	if err != nil {
		return err
	}
	displayName = strings.TrimSpace(displayName)
	if utf8.RuneCountInString(displayName) > 128 {
		return fmt.Errorf("%w: display name too long", errs.ErrInvalidArgument)
	}
	if displayName == "" {
		return q.Store.SetDiscoverable(ctx, id.String(), discoverable)
	}
	return q.Store.UpsertAccount(ctx, &model.Account{
		UserID:       id.String(),
		DisplayName:  displayName,
		Discoverable: discoverable,
	})
}
