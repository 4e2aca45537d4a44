package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_LocalMode(t *testing.T) {
	b, err := Open(CacheConfig{})
	require.NoError(t, err)
	defer b.Close()
	assert.Nil(t, b.Redis)

	ctx := context.Background()
	require.NoError(t, b.Cache.Set(ctx, "k", "v", time.Minute))
	v, err := b.Cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	_, err = b.Cache.Get(ctx, "missing")
	assert.True(t, IsErrNotFound(err))
}

func TestOpen_LocalPubSubBridge(t *testing.T) {
	b, err := Open(CacheConfig{LocalPubSubBuf: 8})
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	ch, cancel, err := b.PubSub.Subscribe(ctx, "friends:user:alice@local.example")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, b.PubSub.Publish(ctx, "friends:user:alice@local.example", `{"type":"friend_request"}`))
	select {
	case msg := <-ch:
		assert.Equal(t, "friends:user:alice@local.example", msg.Channel)
		assert.JSONEq(t, `{"type":"friend_request"}`, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for bridged message")
	}
}
