// Package store is the Relationship Store: the sole owner of friend requests,
// friendships, blocks and the account directory.
//
// Every call carries the store timeout. Status changes are conditional
// updates on the status column, so concurrent writers from any number of
// processes observe exactly one winner.
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kasuganosora/socialgraph/errs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Page bounds a keyset-paginated listing.
type Page struct {
	Cursor string
	Limit  int
}

// Store wraps a gorm handle. A Store obtained inside WithTx is bound to the
// transaction.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
	inTx    bool
	share   bool
}

// New creates a Store. timeout bounds every store interaction.
func New(db *gorm.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

// WithTx runs fn in one transaction. Any error from fn rolls back every write
// made through the tx Store. Nested calls reuse the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, timeout: s.timeout, inTx: true})
	})
	return unavailable("store.tx", err)
}

// ForShare returns a view of the transaction Store whose Blocked and
// GetFriendship take shared row locks, reading the latest committed rows and
// holding off concurrent writers until commit. Outside a transaction it
// returns s. Engines that cannot lock rows ignore the clause.
func (s *Store) ForShare() *Store {
	if !s.inTx {
		return s
	}
	return &Store{db: s.db, timeout: s.timeout, inTx: true, share: true}
}

// locking adds the shared lock clause to q for a ForShare view.
func (s *Store) locking(q *gorm.DB) *gorm.DB {
	if !s.share {
		return q
	}
	return q.Clauses(clause.Locking{Strength: "SHARE"})
}

// conn returns a handle bounded by the store timeout. Inside a transaction
// the transaction's own deadline applies.
func (s *Store) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if s.inTx {
		return s.db, func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

func unavailable(op string, err error) error {
	return errs.Unavailable(op, err)
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry")
}

// ---- cursors ----

// cursor is the position after the last returned row: its created_at and a
// tiebreak key, both compared descending.
type cursor struct {
	at  time.Time
	key string
}

func encodeCursor(at time.Time, key string) string {
	raw := strconv.FormatInt(at.UnixNano(), 10) + "|" + key
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (*cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", errs.ErrInvalidArgument)
	}
	ts, key, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, fmt.Errorf("%w: malformed cursor", errs.ErrInvalidArgument)
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", errs.ErrInvalidArgument)
	}
	return &cursor{at: time.Unix(0, n).UTC(), key: key}, nil
}

// keyset filters rows after c and orders by (createdCol, keyExpr) descending,
// fetching one extra row to detect the next page. keyExpr may reference
// placeholders bound by keyVars.
func keyset(q *gorm.DB, c *cursor, createdCol, keyExpr string, keyVars []interface{}, limit int) *gorm.DB {
	if c != nil {
		vars := append([]interface{}{c.at, c.at}, keyVars...)
		vars = append(vars, c.key)
		q = q.Where("("+createdCol+" < ? OR ("+createdCol+" = ? AND "+keyExpr+" < ?))", vars...)
	}
	return q.Clauses(clause.OrderBy{Expression: clause.Expr{
		SQL:                createdCol + " DESC, " + keyExpr + " DESC",
		Vars:               keyVars,
		WithoutParentheses: true,
	}}).Limit(limit + 1)
}

// trimPage cuts rows to limit and returns the cursor of the last kept row
// when more rows exist.
func trimPage[T any](rows []T, limit int, pos func(T) (time.Time, string)) ([]T, string) {
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	at, key := pos(rows[len(rows)-1])
	return rows, encodeCursor(at, key)
}
