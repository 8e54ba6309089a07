package caja

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/taller-erp/taller-erp/internal/shared"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, time.Minute), mr
}

func TestRedisLockerSerialisesBranch(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, 2)
	require.NoError(t, err)
	require.True(t, mr.Exists(shared.BranchCloseLockKey(2)))

	_, err = locker.Acquire(ctx, 2)
	require.ErrorIs(t, err, ErrCloseInProgress)

	other, err := locker.Acquire(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists(shared.BranchCloseLockKey(2)))

	again, err := locker.Acquire(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, 2)
	require.NoError(t, err)

	// lock expired and was taken by another holder
	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set(shared.BranchCloseLockKey(2), "someone-else"))

	require.NoError(t, release(ctx))
	got, err := mr.Get(shared.BranchCloseLockKey(2))
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}

func TestCloseRegisterRespectsBranchLock(t *testing.T) {
	locker, _ := newTestLocker(t)
	repo := newMemoryRepo()
	svc := NewService(repo, repo, ServiceConfig{Locker: locker})
	ctx := context.Background()
	repo.seedOpenRegister(2, "0")

	release, err := locker.Acquire(ctx, 2)
	require.NoError(t, err)
	_, err = svc.CloseRegister(ctx, CloseInput{BranchID: 2, ActorID: 1, CountedBalance: decPtr("0")})
	require.ErrorIs(t, err, ErrCloseInProgress)
	require.Equal(t, 1, repo.openCount(2))
	require.NoError(t, release(ctx))

	_, err = svc.CloseRegister(ctx, CloseInput{BranchID: 2, ActorID: 1, CountedBalance: decPtr("0")})
	require.NoError(t, err)
}
