package locks

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func skipEval(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unknown command")
}

func TestRedisStoreAcquireRelease(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "slot:1:profile_picture", "token-a", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Acquire(ctx, "slot:1:profile_picture", "token-b", 2*time.Second)
	if skipEval(err) {
		t.Skip("miniredis does not support EVAL")
	}
	require.NoError(t, err)
	assert.False(t, ok, "second token must not take a held lock")

	ok, err = store.Release(ctx, "slot:1:profile_picture", "token-b")
	require.NoError(t, err)
	assert.False(t, ok, "foreign token must not release")

	ok, err = store.Release(ctx, "slot:1:profile_picture", "token-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Acquire(ctx, "slot:1:profile_picture", "token-b", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStoreReacquireSameToken(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "slot:2:profile_picture", "token-a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Acquire(ctx, "slot:2:profile_picture", "token-a", 10*time.Second)
	if skipEval(err) {
		t.Skip("miniredis does not support EVAL")
	}
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Greater(t, mr.TTL(lockKey("slot:2:profile_picture")), time.Second)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "slot:3:profile_picture", "token-a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = store.Acquire(ctx, "slot:3:profile_picture", "token-b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock must be free")
}

func TestRedisStoreValidation(t *testing.T) {
	store, _ := newTestRedisStore(t)
	_, err := store.Acquire(context.Background(), " ", "token", time.Second)
	assert.Error(t, err)
	_, err = store.Release(context.Background(), "slot", "")
	assert.Error(t, err)
}

func TestRedisStoreUnavailable(t *testing.T) {
	var store *RedisStore
	_, err := store.Acquire(context.Background(), "a", "b", time.Second)
	assert.Error(t, err)
	assert.NoError(t, store.Close())
}

func TestNewRedisStoreBadURL(t *testing.T) {
	_, err := NewRedisStore("not-a-url://")
	assert.Error(t, err)
}
