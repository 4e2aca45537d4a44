package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/socialgraph/errs"
	"github.com/kasuganosora/socialgraph/model"
	"gorm.io/gorm"
)

// Direction selects incoming or outgoing requests.
type Direction string

const (
	Received Direction = "received"
	Sent     Direction = "sent"
)

// InsertRequest stores a new pending request. A concurrent pending request on
// the same pair fails the unique pending_key index and yields
// errs.ErrDuplicateRequest.
func (s *Store) InsertRequest(ctx context.Context, r *model.FriendRequest) error {
	if r.Status == model.RequestPending {
		k := model.PairKey(r.SenderID, r.TargetID)
		r.PendingKey = &k
	}
	db, cancel := s.conn(ctx)
	defer cancel()
	if err := db.Create(r).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: pending request exists between %s and %s", errs.ErrDuplicateRequest, r.SenderID, r.TargetID)
		}
		return unavailable("store.insert_request", err)
	}
	return nil
}

// GetRequest loads a request by id.
func (s *Store) GetRequest(ctx context.Context, id string) (*model.FriendRequest, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var r model.FriendRequest
	err := db.Where("request_id = ?", id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: request %s", errs.ErrNotFound, id)
	}
	if err != nil {
		return nil, unavailable("store.get_request", err)
	}
	return &r, nil
}

// PendingBetween returns the pending request of the unordered pair {a, b},
// or nil when there is none.
func (s *Store) PendingBetween(ctx context.Context, a, b string) (*model.FriendRequest, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var rows []model.FriendRequest
	err := db.Where("pending_key = ? AND status = ?", model.PairKey(a, b), model.RequestPending).
		Limit(1).Find(&rows).Error
	if err != nil {
		return nil, unavailable("store.pending_between", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// TransitionRequest moves request id from pending to status. It reports false
// when the request was no longer pending.
func (s *Store) TransitionRequest(ctx context.Context, id string, status model.RequestStatus, now time.Time) (bool, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	res := db.Model(&model.FriendRequest{}).
		Where("request_id = ? AND status = ?", id, model.RequestPending).
		Updates(map[string]interface{}{
			"status":      status,
			"pending_key": nil,
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, unavailable("store.transition_request", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CancelPendingBetween cancels the pending request of {a, b} in either
// direction and returns the number of rows changed.
func (s *Store) CancelPendingBetween(ctx context.Context, a, b string, now time.Time) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	res := db.Model(&model.FriendRequest{}).
		Where("pending_key = ? AND status = ?", model.PairKey(a, b), model.RequestPending).
		Updates(map[string]interface{}{
			"status":      model.RequestCancelled,
			"pending_key": nil,
			"updated_at":  now,
		})
	if res.Error != nil {
		return 0, unavailable("store.cancel_pending", res.Error)
	}
	return res.RowsAffected, nil
}

// ExpirePending marks every pending request past its expiry as expired. A
// non-empty userID limits it to requests that user takes part in. It is a
// single conditional update, safe to run from many workers at once.
func (s *Store) ExpirePending(ctx context.Context, now time.Time, userID string) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	q := db.Model(&model.FriendRequest{}).
		Where("status = ? AND expires_at < ?", model.RequestPending, now)
	if userID != "" {
		q = q.Where("(sender_id = ? OR target_id = ?)", userID, userID)
	}
	res := q.Updates(map[string]interface{}{
		"status":      model.RequestExpired,
		"pending_key": nil,
		"updated_at":  now,
	})
	if res.Error != nil {
		return 0, unavailable("store.expire_pending", res.Error)
	}
	return res.RowsAffected, nil
}

// ListPending returns live pending requests of userID, newest first. Rows
// already past expiry at now are skipped.
func (s *Store) ListPending(ctx context.Context, userID string, dir Direction, now time.Time, p Page) ([]model.FriendRequest, string, error) {
	c, err := decodeCursor(p.Cursor)
	if err != nil {
		return nil, "", err
	}
	col := "target_id"
	if dir == Sent {
		col = "sender_id"
	}
	db, cancel := s.conn(ctx)
	defer cancel()

	q := db.Model(&model.FriendRequest{}).
		Where(col+" = ? AND status = ? AND expires_at >= ?", userID, model.RequestPending, now)
	var rows []model.FriendRequest
	if err := keyset(q, c, "created_at", "request_id", nil, p.Limit).Find(&rows).Error; err != nil {
		return nil, "", unavailable("store.list_pending", err)
	}
	rows, next := trimPage(rows, p.Limit, func(r model.FriendRequest) (time.Time, string) {
		return r.CreatedAt, r.RequestID
	})
	return rows, next, nil
}

// PendingAmong reports, for each id, whether a pending request exists between
// userID and id in either direction.
func (s *Store) PendingAmong(ctx context.Context, userID string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = model.PairKey(userID, id)
	}
	db, cancel := s.conn(ctx)
	defer cancel()
	var rows []model.FriendRequest
	err := db.Select("sender_id", "target_id").
		Where("pending_key IN ? AND status = ?", keys, model.RequestPending).
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("store.pending_among", err)
	}
	for _, r := range rows {
		if r.SenderID == userID {
			out[r.TargetID] = true
		} else {
			out[r.SenderID] = true
		}
	}
	return out, nil
}
