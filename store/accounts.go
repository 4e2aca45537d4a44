package store

import (
	"context"
	"strings"
	"time"

	"github.com/kasuganosora/socialgraph/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertAccount registers or updates a directory entry.
func (s *Store) UpsertAccount(ctx context.Context, a *model.Account) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	db, cancel := s.conn(ctx)
	defer cancel()
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "discoverable", "updated_at"}),
	}).Create(a).Error
	return unavailable("store.upsert_account", err)
}

// SetDiscoverable toggles whether userID appears in searches, creating the
// directory entry when missing.
func (s *Store) SetDiscoverable(ctx context.Context, userID string, discoverable bool) error {
	now := time.Now().UTC()
	db, cancel := s.conn(ctx)
	defer cancel()
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"discoverable", "updated_at"}),
	}).Create(&model.Account{UserID: userID, Discoverable: discoverable, CreatedAt: now, UpdatedAt: now}).Error
	return unavailable("store.set_discoverable", err)
}

// SearchFilter narrows SearchAccounts.
type SearchFilter struct {
	Query     string
	Requester string
	// OnlyDiscoverable hides accounts that opted out of discovery.
	OnlyDiscoverable bool
	Limit            int
}

// SearchAccounts matches Query against user ids and display names. The
// requester and accounts that blocked the requester are never returned.
func (s *Store) SearchAccounts(ctx context.Context, f SearchFilter) ([]model.Account, error) {
	pattern := "%" + escapeLike(strings.ToLower(f.Query)) + "%"
	db, cancel := s.conn(ctx)
	defer cancel()

	blockedMe := db.Session(&gorm.Session{NewDB: true}).Model(&model.Block{}).
		Select("blocker_id").Where("blocked_id = ?", f.Requester)

	q := db.Model(&model.Account{}).
		Where("(LOWER(user_id) LIKE ? ESCAPE '!' OR LOWER(display_name) LIKE ? ESCAPE '!')", pattern, pattern).
		Where("user_id <> ?", f.Requester).
		Where("user_id NOT IN (?)", blockedMe)
	if f.OnlyDiscoverable {
		q = q.Where("discoverable = ?", true)
	}
	var rows []model.Account
	if err := q.Order("user_id").Limit(f.Limit).Find(&rows).Error; err != nil {
		return nil, unavailable("store.search_accounts", err)
	}
	return rows, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
