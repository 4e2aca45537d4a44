package model_test

import (
	"testing"
	"time"

	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Now().UTC()

	acc := &model.Account{UserID: "alice@local.example", DisplayName: "Alice", Discoverable: true}
	require.NoError(t, db.Create(acc).Error)

	key := model.PairKey("alice@local.example", "bob@remote.example")
	req := &model.FriendRequest{
		RequestID:  "req-1",
		SenderID:   "alice@local.example",
		TargetID:   "bob@remote.example",
		Status:     model.RequestPending,
		PendingKey: &key,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
	require.NoError(t, db.Create(req).Error)

	var found model.FriendRequest
	require.NoError(t, db.First(&found, "request_id = ?", "req-1").Error)
	assert.Equal(t, model.RequestPending, found.Status)
	require.NotNil(t, found.PendingKey)
	assert.Equal(t, key, *found.PendingKey)

	u1, u2 := model.CanonicalPair("bob@remote.example", "alice@local.example")
	require.NoError(t, db.Create(&model.Friendship{User1ID: u1, User2ID: u2, Status: model.FriendshipActive, CreatedAt: now}).Error)
	require.NoError(t, db.Create(&model.Block{BlockerID: "alice@local.example", BlockedID: "carol@local.example", CreatedAt: now}).Error)

	var n int64
	db.Model(&model.Friendship{}).Where("user1_id = ? AND user2_id = ?", "alice@local.example", "bob@remote.example").Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestPendingKey_Unique(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Now().UTC()
	key := model.PairKey("a@x", "b@x")

	mk := func(id, sender, target string, pk *string) *model.FriendRequest {
		return &model.FriendRequest{
			RequestID: id, SenderID: sender, TargetID: target,
			Status: model.RequestPending, PendingKey: pk,
			CreatedAt: now, UpdatedAt: now, ExpiresAt: now.Add(time.Hour),
		}
	}
	require.NoError(t, db.Create(mk("r1", "a@x", "b@x", &key)).Error)
	// Reverse direction maps to the same unordered key.
	rev := model.PairKey("b@x", "a@x")
	assert.Error(t, db.Create(mk("r2", "b@x", "a@x", &rev)).Error)

	// Resolved rows carry NULL and never collide.
	require.NoError(t, db.Create(mk("r3", "a@x", "b@x", nil)).Error)
	require.NoError(t, db.Create(mk("r4", "a@x", "b@x", nil)).Error)
}

func TestCanonicalPair(t *testing.T) {
	lo, hi := model.CanonicalPair("bob@x", "alice@x")
	assert.Equal(t, "alice@x", lo)
	assert.Equal(t, "bob@x", hi)

	lo, hi = model.CanonicalPair("alice@x", "bob@x")
	assert.Equal(t, "alice@x", lo)
	assert.Equal(t, "bob@x", hi)

	assert.Equal(t, model.PairKey("a", "b"), model.PairKey("b", "a"))

	f := &model.Friendship{User1ID: "alice@x", User2ID: "bob@x"}
	assert.Equal(t, "bob@x", f.Other("alice@x"))
	assert.Equal(t, "alice@x", f.Other("bob@x"))
}

func TestRequestStatus_Terminal(t *testing.T) {
	assert.False(t, model.RequestPending.Terminal())
	for _, s := range []model.RequestStatus{model.RequestAccepted, model.RequestRejected, model.RequestCancelled, model.RequestExpired} {
		assert.True(t, s.Terminal(), s)
	}
}
