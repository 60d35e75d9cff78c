package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/accessguard/accessguard/cache"
	"github.com/accessguard/accessguard/config"
)

func newTestGuard(t *testing.T, values map[string]string) (*Guard, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := cache.New(cache.NewMemoryStore(), zerolog.Nop(), cache.Options{})
	return NewGuard(NewRedisStore(rdb), config.NewStatic(values), c, zerolog.Nop()), mr
}

func TestRecordFailedLoginLocksAtThreshold(t *testing.T) {
	guard, _ := newTestGuard(t, map[string]string{
		"security:lockout:max_attempts": "3",
	})
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		count, locked, until, err := guard.RecordFailedLogin(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, i, count)
		require.False(t, locked)
		require.Nil(t, until)
	}

	count, locked, until, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.True(t, locked)
	require.NotNil(t, until)
	require.True(t, until.After(time.Now()))

	end, err := guard.IsLockedOut(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, end)
}

func TestSuccessfulLoginResetsCounter(t *testing.T) {
	guard, _ := newTestGuard(t, nil)
	ctx := context.Background()

	_, _, _, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	_, _, _, err = guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, guard.RecordSuccessfulLogin(ctx, "alice"))

	count, locked, _, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, count, "counter must restart after a successful login")
	require.False(t, locked)
}

func TestSuccessDuringLockoutDoesNotReset(t *testing.T) {
	guard, _ := newTestGuard(t, map[string]string{
		"security:lockout:max_attempts": "2",
	})
	ctx := context.Background()

	_, _, _, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	_, locked, _, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, guard.RecordSuccessfulLogin(ctx, "alice"))

	end, err := guard.IsLockedOut(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, end, "a success during an active lockout must not lift it")
}

func TestLockoutExpiresWithWindow(t *testing.T) {
	guard, mr := newTestGuard(t, map[string]string{
		"security:lockout:max_attempts":     "2",
		"security:lockout:duration_minutes": "15",
	})
	ctx := context.Background()

	_, _, _, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	_, locked, _, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	require.True(t, locked)

	mr.FastForward(16 * time.Minute)

	end, err := guard.IsLockedOut(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, end)

	count, locked, _, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, count, "window expiry must also clear the counter")
	require.False(t, locked)
}

func TestDisabledLockoutIsNoOp(t *testing.T) {
	guard, _ := newTestGuard(t, map[string]string{
		"security:lockout:enabled": "false",
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		count, locked, until, err := guard.RecordFailedLogin(ctx, "alice")
		require.NoError(t, err)
		require.Zero(t, count)
		require.False(t, locked)
		require.Nil(t, until)
	}

	end, err := guard.IsLockedOut(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, end)
}

func TestAdministrativeUnlock(t *testing.T) {
	guard, _ := newTestGuard(t, map[string]string{
		"security:lockout:max_attempts": "2",
	})
	ctx := context.Background()

	_, _, _, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	_, locked, _, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, guard.Unlock(ctx, "alice"))

	end, err := guard.IsLockedOut(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, end)

	count, _, _, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestUsersAreIsolated(t *testing.T) {
	guard, _ := newTestGuard(t, map[string]string{
		"security:lockout:max_attempts": "2",
	})
	ctx := context.Background()

	_, _, _, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	_, locked, _, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	require.True(t, locked)

	end, err := guard.IsLockedOut(ctx, "bob")
	require.NoError(t, err)
	require.Nil(t, end)
}

func TestStoreUnavailablePropagates(t *testing.T) {
	guard, mr := newTestGuard(t, nil)
	mr.Close()

	_, _, _, err := guard.RecordFailedLogin(context.Background(), "alice")
	require.ErrorIs(t, err, ErrStoreUnavailable)
}
