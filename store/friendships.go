package store

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/socialgraph/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// otherExpr is the id of the participant that is not the bound user.
const otherExpr = "CASE WHEN user1_id = ? THEN user2_id ELSE user1_id END"

// GetFriendship returns the canonical row of {a, b}, or nil.
func (s *Store) GetFriendship(ctx context.Context, a, b string) (*model.Friendship, error) {
	u1, u2 := model.CanonicalPair(a, b)
	db, cancel := s.conn(ctx)
	defer cancel()
	var f model.Friendship
	err := s.locking(db).Where("user1_id = ? AND user2_id = ?", u1, u2).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("store.get_friendship", err)
	}
	return &f, nil
}

// PutFriendship creates the active friendship of {a, b}, reactivating a row
// previously marked blocked.
func (s *Store) PutFriendship(ctx context.Context, a, b string, now time.Time) (*model.Friendship, error) {
	u1, u2 := model.CanonicalPair(a, b)
	f := &model.Friendship{User1ID: u1, User2ID: u2, Status: model.FriendshipActive, CreatedAt: now}
	db, cancel := s.conn(ctx)
	defer cancel()
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user1_id"}, {Name: "user2_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "created_at"}),
	}).Create(f).Error
	if err != nil {
		return nil, unavailable("store.put_friendship", err)
	}
	return f, nil
}

// DeleteFriendship removes the row of {a, b} whatever its status and reports
// whether one existed. With activeOnly only an active row is removed.
func (s *Store) DeleteFriendship(ctx context.Context, a, b string, activeOnly bool) (bool, error) {
	u1, u2 := model.CanonicalPair(a, b)
	db, cancel := s.conn(ctx)
	defer cancel()
	q := db.Where("user1_id = ? AND user2_id = ?", u1, u2)
	if activeOnly {
		q = q.Where("status = ?", model.FriendshipActive)
	}
	res := q.Delete(&model.Friendship{})
	if res.Error != nil {
		return false, unavailable("store.delete_friendship", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkFriendshipBlocked flips an existing row of {a, b} to blocked.
func (s *Store) MarkFriendshipBlocked(ctx context.Context, a, b string) (bool, error) {
	u1, u2 := model.CanonicalPair(a, b)
	db, cancel := s.conn(ctx)
	defer cancel()
	res := db.Model(&model.Friendship{}).
		Where("user1_id = ? AND user2_id = ? AND status = ?", u1, u2, model.FriendshipActive).
		Update("status", model.FriendshipBlocked)
	if res.Error != nil {
		return false, unavailable("store.mark_friendship_blocked", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CountFriends counts active friendships of userID.
func (s *Store) CountFriends(ctx context.Context, userID string) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var n int64
	err := db.Model(&model.Friendship{}).
		Where("(user1_id = ? OR user2_id = ?) AND status = ?", userID, userID, model.FriendshipActive).
		Count(&n).Error
	if err != nil {
		return 0, unavailable("store.count_friends", err)
	}
	return n, nil
}

// ListFriendships returns active friendships of userID, newest first.
func (s *Store) ListFriendships(ctx context.Context, userID string, p Page) ([]model.Friendship, string, error) {
	c, err := decodeCursor(p.Cursor)
	if err != nil {
		return nil, "", err
	}
	db, cancel := s.conn(ctx)
	defer cancel()

	q := db.Model(&model.Friendship{}).
		Where("(user1_id = ? OR user2_id = ?) AND status = ?", userID, userID, model.FriendshipActive)
	var rows []model.Friendship
	if err := keyset(q, c, "created_at", otherExpr, []interface{}{userID}, p.Limit).Find(&rows).Error; err != nil {
		return nil, "", unavailable("store.list_friendships", err)
	}
	rows, next := trimPage(rows, p.Limit, func(f model.Friendship) (time.Time, string) {
		return f.CreatedAt, f.Other(userID)
	})
	return rows, next, nil
}

// FriendsAmong returns the subset of ids that are active friends of userID.
func (s *Store) FriendsAmong(ctx context.Context, userID string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	db, cancel := s.conn(ctx)
	defer cancel()
	var rows []model.Friendship
	err := db.Where("status = ? AND ((user1_id = ? AND user2_id IN ?) OR (user2_id = ? AND user1_id IN ?))",
		model.FriendshipActive, userID, ids, userID, ids).Find(&rows).Error
	if err != nil {
		return nil, unavailable("store.friends_among", err)
	}
	for _, f := range rows {
		out[f.Other(userID)] = true
	}
	return out, nil
}
