//go:build integration

package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	platformredis "freightdesk/internal/platform/redis"
	"freightdesk/internal/shipment/status/reconcile"
	"freightdesk/pkg/testutil/containers"
)

func TestRedisLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	locker := reconcile.NewRedisLocker(&platformredis.Client{Client: rc.Client})
	require.NotNil(t, locker)

	t.Run("acquire and release", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		ok, release, err := locker.Acquire(ctx, "lock:test", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		// Held lock blocks a second acquirer.
		ok2, _, err := locker.Acquire(ctx, "lock:test", time.Minute)
		require.NoError(t, err)
		require.False(t, ok2)

		release()

		ok3, release3, err := locker.Acquire(ctx, "lock:test", time.Minute)
		require.NoError(t, err)
		require.True(t, ok3)
		release3()
	})

	t.Run("release is token guarded", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		ok, staleRelease, err := locker.Acquire(ctx, "lock:test", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		// Simulate expiry and re-acquisition by another instance.
		require.NoError(t, rc.Client.Del(ctx, "lock:test").Err())
		ok2, release2, err := locker.Acquire(ctx, "lock:test", time.Minute)
		require.NoError(t, err)
		require.True(t, ok2)

		// The stale holder's release must not free the new holder's lock.
		staleRelease()
		held, err := rc.Client.Exists(ctx, "lock:test").Result()
		require.NoError(t, err)
		require.Equal(t, int64(1), held)

		release2()
	})

	t.Run("independent keys do not contend", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		ok, rel1, err := locker.Acquire(ctx, "lock:a", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		ok2, rel2, err := locker.Acquire(ctx, "lock:b", time.Minute)
		require.NoError(t, err)
		require.True(t, ok2)
		rel1()
		rel2()
	})
}
