package friends

import (
	"context"
	"fmt"

	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/config"
	"github.com/kasuganosora/socialgraph/errs"
	"github.com/kasuganosora/socialgraph/notify"
	"github.com/kasuganosora/socialgraph/ratelimit"
	"github.com/kasuganosora/socialgraph/store"
	"go.uber.org/zap"
)

// Blocking manages one-directional blocks.
type Blocking struct{ *base }

// Block suppresses target for blocker. In the same transaction it cancels any
// pending request between the two and applies the friendship policy.
// Blocking an already blocked user is a no-op.
func (b *Blocking) Block(ctx context.Context, blocker, target string) error {
	if err := b.enabled(b.cfg.Blocking.Enabled, "blocking"); err != nil {
		return err
	}
	from, to, err := b.pair(blocker, target)
	if err != nil {
		return err
	}
	if has, err := b.Store.HasBlocked(ctx, from.String(), to.String()); err != nil {
		return err
	} else if has {
		return nil
	}
	if limit := b.cfg.Blocking.MaxBlockedUsers; limit > 0 {
		n, err := b.Store.CountBlocks(ctx, from.String())
		if err != nil {
			return err
		}
		if n >= int64(limit) {
			return fmt.Errorf("%w: %s has %d blocks, limit %d", errs.ErrLimitExceeded, from, n, limit)
		}
	}
	held, err := b.admit(ctx, from, ratelimit.ActionBlock)
	if err != nil {
		return err
	}

	now := b.now()
	var cancelled int64
	var friendship string
	var created bool
	err = b.Store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		created, err = tx.InsertBlock(ctx, from.String(), to.String(), now)
		if err != nil || !created {
			return err
		}
		if cancelled, err = tx.CancelPendingBetween(ctx, from.String(), to.String(), now); err != nil {
			return err
		}
		var changed bool
		if b.cfg.Blocking.FriendshipPolicy == config.BlockPolicyMarkBlocked {
			changed, err = tx.MarkFriendshipBlocked(ctx, from.String(), to.String())
			if changed {
				friendship = "marked_blocked"
			}
		} else {
			changed, err = tx.DeleteFriendship(ctx, from.String(), to.String(), false)
			if changed {
				friendship = "removed"
			}
		}
		return err
	})
	if err != nil || !created {
		// the transaction failed, or a concurrent Block got there first
		b.refund(ctx, held)
		return err
	}
	b.lists.invalidate(ctx, from.String(), to.String())

	b.Logger.Info("user blocked",
		zap.String("blocker", from.String()),
		zap.String("blocked", to.String()),
		zap.Int64("cancelled_requests", cancelled),
		zap.String("friendship", friendship))
	b.audit(ctx, audit.Entry{
		ActorID: from.String(), SubjectID: to.String(), Action: audit.ActionBlocked,
		Detail: map[string]interface{}{"cancelled_requests": cancelled, "friendship": friendship},
	})
	// Blocked users are not told; only a remote domain needs to learn of it.
	if !b.Resolver.IsLocal(to) {
		b.emit(notify.Event{Type: notify.UserBlocked, Recipient: to.String(), Actor: from.String(), At: now})
	}
	return nil
}

// Unblock lifts blocker's block on target if present. It never restores a
// cancelled request or a removed friendship.
func (b *Blocking) Unblock(ctx context.Context, blocker, target string) error {
	if err := b.enabled(b.cfg.Blocking.Enabled, "blocking"); err != nil {
		return err
	}
	from, to, err := b.pair(blocker, target)
	if err != nil {
		return err
	}
	removed, err := b.Store.DeleteBlock(ctx, from.String(), to.String())
	if err != nil {
		return err
	}
	if removed {
		b.audit(ctx, audit.Entry{ActorID: from.String(), SubjectID: to.String(), Action: audit.ActionUnblocked})
	}
	return nil
}
