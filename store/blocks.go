package store

import (
	"context"
	"time"

	"github.com/kasuganosora/socialgraph/model"
	"gorm.io/gorm/clause"
)

// InsertBlock stores blocker → blocked. It reports false when the block was
// already present, leaving the original row untouched.
func (s *Store) InsertBlock(ctx context.Context, blocker, blocked string, now time.Time) (bool, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	res := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Block{BlockerID: blocker, BlockedID: blocked, CreatedAt: now})
	if res.Error != nil {
		return false, unavailable("store.insert_block", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteBlock removes blocker → blocked and reports whether it existed.
func (s *Store) DeleteBlock(ctx context.Context, blocker, blocked string) (bool, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	res := db.Where("blocker_id = ? AND blocked_id = ?", blocker, blocked).Delete(&model.Block{})
	if res.Error != nil {
		return false, unavailable("store.delete_block", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Blocked reports whether a block exists between a and b in either direction.
func (s *Store) Blocked(ctx context.Context, a, b string) (bool, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var n int64
	err := s.locking(db.Model(&model.Block{})).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&n).Error
	if err != nil {
		return false, unavailable("store.blocked", err)
	}
	return n > 0, nil
}

// HasBlocked reports whether blocker → blocked exists.
func (s *Store) HasBlocked(ctx context.Context, blocker, blocked string) (bool, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var n int64
	err := db.Model(&model.Block{}).
		Where("blocker_id = ? AND blocked_id = ?", blocker, blocked).
		Count(&n).Error
	if err != nil {
		return false, unavailable("store.has_blocked", err)
	}
	return n > 0, nil
}

// CountBlocks counts blocks placed by blocker.
func (s *Store) CountBlocks(ctx context.Context, blocker string) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()
	var n int64
	if err := db.Model(&model.Block{}).Where("blocker_id = ?", blocker).Count(&n).Error; err != nil {
		return 0, unavailable("store.count_blocks", err)
	}
	return n, nil
}

// ListBlocks returns blocks placed by blocker, newest first.
func (s *Store) ListBlocks(ctx context.Context, blocker string, p Page) ([]model.Block, string, error) {
	c, err := decodeCursor(p.Cursor)
	if err != nil {
		return nil, "", err
	}
	db, cancel := s.conn(ctx)
	defer cancel()

	q := db.Model(&model.Block{}).Where("blocker_id = ?", blocker)
	var rows []model.Block
	if err := keyset(q, c, "created_at", "blocked_id", nil, p.Limit).Find(&rows).Error; err != nil {
		return nil, "", unavailable("store.list_blocks", err)
	}
	rows, next := trimPage(rows, p.Limit, func(b model.Block) (time.Time, string) {
		return b.CreatedAt, b.BlockedID
	})
	return rows, next, nil
}
