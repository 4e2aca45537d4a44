package friends

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/errs"
	"github.com/kasuganosora/socialgraph/identity"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/notify"
	"github.com/kasuganosora/socialgraph/ratelimit"
	"github.com/kasuganosora/socialgraph/store"
	"go.uber.org/zap"
)

// Engine drives the friend request state machine.
type Engine struct{ *base }

// Create sends a friend request from sender to target.
func (e *Engine) Create(ctx context.Context, sender, target, message string) (*model.FriendRequest, error) {
	if err := e.enabled(e.cfg.Requests.Enabled, "friend requests"); err != nil {
		return nil, err
	}
	from, to, err := e.pair(sender, target)
	if err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(message); n > e.cfg.Requests.MessageMaxLength {
		return nil, fmt.Errorf("%w: message is %d characters, limit %d", errs.ErrInvalidArgument, n, e.cfg.Requests.MessageMaxLength)
	}

	now := e.now()
	req := &model.FriendRequest{
		RequestID: uuid.NewString(),
		SenderID:  from.String(),
		TargetID:  to.String(),
		Message:   message,
		Status:    model.RequestPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(e.cfg.RequestTTL()),
	}

	var held *slot
	err = e.Store.WithTx(ctx, func(tx *store.Store) error {
		// locking reads, so a block or friendship committed meanwhile is
		// seen here or waits for this transaction
		locked := tx.ForShare()
		f, err := locked.GetFriendship(ctx, req.SenderID, req.TargetID)
		if err != nil {
			return err
		}
		if f != nil && f.Status == model.FriendshipActive {
			return fmt.Errorf("%w: %s and %s", errs.ErrAlreadyFriends, from, to)
		}
		blocked, err := locked.Blocked(ctx, req.SenderID, req.TargetID)
		if err != nil {
			return err
		}
		if blocked {
			return fmt.Errorf("%w: %s and %s", errs.ErrBlocked, from, to)
		}
		existing, err := tx.PendingBetween(ctx, req.SenderID, req.TargetID)
		if err != nil {
			return err
		}
		if existing != nil {
			if !existing.ExpiredAt(now) {
				return fmt.Errorf("%w: request %s is pending", errs.ErrDuplicateRequest, existing.RequestID)
			}
			// reap it so the pair is free again
			if _, err := tx.TransitionRequest(ctx, existing.RequestID, model.RequestExpired, now); err != nil {
				return err
			}
		}
		if err := e.checkFriendLimit(ctx, tx, from); err != nil {
			return err
		}
		if held, err = e.admit(ctx, from, ratelimit.ActionSendRequest); err != nil {
			return err
		}
		return tx.InsertRequest(ctx, req)
	})
	if err != nil {
		e.refund(ctx, held)
		return nil, err
	}

	e.Logger.Info("friend request created",
		zap.String("request_id", req.RequestID),
		zap.String("sender", req.SenderID),
		zap.String("target", req.TargetID))
	e.audit(ctx, audit.Entry{
		ActorID: req.SenderID, SubjectID: req.TargetID,
		Action: audit.ActionRequestCreated, RequestID: req.RequestID,
	})
	e.emit(notify.Event{
		Type: notify.RequestReceived, Recipient: req.TargetID, Actor: req.SenderID,
		RequestID: req.RequestID, Message: req.Message, At: now,
	})
	return req, nil
}

// Respond accepts or rejects a pending request. Only its target may respond.
// Accepting creates the friendship in the same transaction as the status
// change.
func (e *Engine) Respond(ctx context.Context, requestID, responder string, accept bool) (*model.FriendRequest, error) {
	if err := e.enabled(e.cfg.Requests.Enabled, "friend requests"); err != nil {
		return nil, err
	}
	who, err := e.Resolver.Resolve(responder)
	if err != nil {
		return nil, err
	}
	req, err := e.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.TargetID != who.String() {
		return nil, fmt.Errorf("%w: %s is not the target of request %s", errs.ErrNotAuthorized, who, requestID)
	}
	if err := e.checkLive(ctx, req); err != nil {
		return nil, err
	}
	now := e.now()
	sender := identity.ID(req.SenderID)
	if blocked, err := e.Store.Blocked(ctx, req.SenderID, req.TargetID); err != nil {
		return nil, err
	} else if blocked {
		return nil, fmt.Errorf("%w: %s and %s", errs.ErrBlocked, sender, who)
	}

	status := model.RequestRejected
	if accept {
		status = model.RequestAccepted
	}
	var held *slot
	err = e.Store.WithTx(ctx, func(tx *store.Store) error {
		if accept {
			if err := e.checkFriendLimit(ctx, tx, who); err != nil {
				return err
			}
			if err := e.checkFriendLimit(ctx, tx, sender); err != nil {
				return err
			}
		}
		var err error
		if held, err = e.admit(ctx, who, ratelimit.ActionRespond); err != nil {
			return err
		}
		ok, err := tx.TransitionRequest(ctx, req.RequestID, status, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: request %s", errs.ErrAlreadyResolved, req.RequestID)
		}
		if accept {
			_, err = tx.PutFriendship(ctx, req.SenderID, req.TargetID, now)
		}
		return err
	})
	if err != nil {
		e.refund(ctx, held)
		return nil, err
	}
	req.Status = status
	req.PendingKey = nil
	req.UpdatedAt = now

	action, evType := audit.ActionRequestRejected, notify.RequestRejected
	if accept {
		action, evType = audit.ActionRequestAccepted, notify.RequestAccepted
		e.lists.invalidate(ctx, req.SenderID, req.TargetID)
	}
	e.Logger.Info("friend request resolved",
		zap.String("request_id", req.RequestID),
		zap.String("status", string(status)))
	e.audit(ctx, audit.Entry{
		ActorID: req.TargetID, SubjectID: req.SenderID,
		Action: action, RequestID: req.RequestID,
	})
	e.emit(notify.Event{
		Type: evType, Recipient: req.SenderID, Actor: req.TargetID,
		RequestID: req.RequestID, At: now,
	})
	return req, nil
}

// Cancel withdraws a pending request. Only its sender may cancel.
func (e *Engine) Cancel(ctx context.Context, requestID, sender string) (*model.FriendRequest, error) {
	if err := e.enabled(e.cfg.Requests.Enabled, "friend requests"); err != nil {
		return nil, err
	}
	who, err := e.Resolver.Resolve(sender)
	if err != nil {
		return nil, err
	}
	req, err := e.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.SenderID != who.String() {
		return nil, fmt.Errorf("%w: %s did not send request %s", errs.ErrNotAuthorized, who, requestID)
	}
	if err := e.checkLive(ctx, req); err != nil {
		return nil, err
	}
	now := e.now()
	ok, err := e.Store.TransitionRequest(ctx, req.RequestID, model.RequestCancelled, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: request %s", errs.ErrAlreadyResolved, req.RequestID)
	}
	req.Status = model.RequestCancelled
	req.PendingKey = nil
	req.UpdatedAt = now

	e.audit(ctx, audit.Entry{
		ActorID: req.SenderID, SubjectID: req.TargetID,
		Action: audit.ActionRequestCancelled, RequestID: req.RequestID,
	})
	e.emit(notify.Event{
		Type: notify.RequestCancelled, Recipient: req.TargetID, Actor: req.SenderID,
		RequestID: req.RequestID, At: now,
	})
	return req, nil
}

// SweepExpired marks every pending request past its expiry as expired and
// returns how many were changed. Safe to run concurrently.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	n, err := e.Store.ExpirePending(ctx, e.now(), "")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.Logger.Info("expired friend requests swept", zap.Int64("count", n))
		e.audit(ctx, audit.Entry{Action: audit.ActionRequestExpired, Detail: map[string]int64{"count": n}})
	}
	return n, nil
}

// RemoveFriend deletes the active friendship between user and friend.
func (e *Engine) RemoveFriend(ctx context.Context, user, friend string) error {
	if err := e.enabled(true, "friends"); err != nil {
		return err
	}
	u, f, err := e.pair(user, friend)
	if err != nil {
		return err
	}
	removed, err := e.Store.DeleteFriendship(ctx, u.String(), f.String(), true)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s and %s are not friends", errs.ErrNotFound, u, f)
	}
	e.lists.invalidate(ctx, u.String(), f.String())

	e.Logger.Info("friendship removed", zap.String("user", u.String()), zap.String("friend", f.String()))
	e.audit(ctx, audit.Entry{ActorID: u.String(), SubjectID: f.String(), Action: audit.ActionFriendRemoved})
	e.emit(notify.Event{Type: notify.FriendRemoved, Recipient: f.String(), Actor: u.String(), At: e.now()})
	return nil
}

// checkLive rejects a request that is no longer pending or is past its
// expiry. An expired pending row is marked expired on the way.
func (e *Engine) checkLive(ctx context.Context, req *model.FriendRequest) error {
	if req.Status.Terminal() {
		return fmt.Errorf("%w: request %s is %s", errs.ErrAlreadyResolved, req.RequestID, req.Status)
	}
	now := e.now()
	if !req.ExpiredAt(now) {
		return nil
	}
	if _, err := e.Store.TransitionRequest(ctx, req.RequestID, model.RequestExpired, now); err != nil {
		e.Logger.Warn("lazy expiry failed", zap.String("request_id", req.RequestID), zap.Error(err))
	}
	return fmt.Errorf("%w: request %s expired at %s", errs.ErrExpired, req.RequestID, req.ExpiresAt.Format(time.RFC3339))
}

func (e *Engine) checkFriendLimit(ctx context.Context, tx *store.Store, user identity.ID) error {
	limit := e.cfg.FriendsList.MaxFriendsPerUser
	if limit <= 0 {
		return nil
	}
	n, err := tx.CountFriends(ctx, user.String())
	if err != nil {
		return err
	}
	if n >= int64(limit) {
		return fmt.Errorf("%w: %s has %d friends, limit %d", errs.ErrLimitExceeded, user, n, limit)
	}
	return nil
}
