package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestTokenStoreKeepsOnlyDigests(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewTokenStore(client, "secret", time.Minute)
	ctx := context.Background()

	sess, err := store.Issue(ctx, Principal{UserID: 9, BranchID: 3})
	require.NoError(t, err)
	keys := mr.Keys()
	require.Len(t, keys, 1)
	require.False(t, strings.Contains(keys[0], sess.Token))
	require.Equal(t, time.Minute, mr.TTL(keys[0]))

	p, err := store.Lookup(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, int64(3), p.BranchID)

	other := NewTokenStore(client, "another-secret", time.Minute)
	_, err = other.Lookup(ctx, sess.Token)
	require.ErrorIs(t, err, ErrTokenInvalid)

	require.NoError(t, store.Revoke(ctx, sess.Token))
	require.NoError(t, store.Revoke(ctx, sess.Token))
	_, err = store.Lookup(ctx, sess.Token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}
