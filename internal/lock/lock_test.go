package lock

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/qmdoc/doccontrol/internal/document"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	release, err := l.Acquire(ctx, "A01VA004", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "A01VA004", time.Minute)
	require.ErrorIs(t, err, document.ErrLocked)

	other, err := l.Acquire(ctx, "A01VA005", time.Minute)
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := l.Acquire(ctx, "A01VA004", time.Minute)
	require.NoError(t, err)
	again()
}

func TestMemoryLockerExpiredLease(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLocker()
	l.now = func() time.Time { return now }

	stale, err := l.Acquire(ctx, "A01VA004", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := l.Acquire(ctx, "A01VA004", time.Minute)
	require.NoError(t, err)

	// the expired holder must not release the new lease
	stale()
	_, err = l.Acquire(ctx, "A01VA004", time.Minute)
	require.ErrorIs(t, err, document.ErrLocked)
	fresh()
}

func TestRedisLocker(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	l := NewRedisLocker(client, "test:lock:")
	ctx := context.Background()

	release, err := l.Acquire(ctx, "A01VA004", time.Minute)
	require.NoError(t, err)
	require.True(t, m.Exists("test:lock:A01VA004"))

	_, err = l.Acquire(ctx, "A01VA004", time.Minute)
	require.ErrorIs(t, err, document.ErrLocked)

	release()
	require.False(t, m.Exists("test:lock:A01VA004"))

	_, err = l.Acquire(ctx, "A01VA004", time.Minute)
	require.NoError(t, err)
}

func TestRedisLockerExpiredLeaseKeepsSuccessor(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	l := NewRedisLocker(client, "")
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "A01VA004", time.Second)
	require.NoError(t, err)
	m.FastForward(2 * time.Second)

	_, err = l.Acquire(ctx, "A01VA004", time.Minute)
	require.NoError(t, err)

	stale()
	require.True(t, m.Exists("qmdoc:lock:A01VA004"))
}
