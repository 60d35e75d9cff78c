package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return New(store, zerolog.Nop(), Options{}), store
}

func TestGetOrSetRunsFactoryOnceAndCaches(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var calls int32
	factory := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	got, err := GetOrSet(ctx, c, "k", Absolute(time.Minute), factory)
	require.NoError(t, err)
	require.Equal(t, "value", got)

	got, err = GetOrSet(ctx, c, "k", Absolute(time.Minute), factory)
	require.NoError(t, err)
	require.Equal(t, "value", got)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrSetCollapsesConcurrentMisses(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var calls int32
	start := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			got, err := GetOrSet(ctx, c, "hot", Absolute(time.Minute), func(context.Context) (int, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(10 * time.Millisecond)
				return 42, nil
			})
			require.NoError(t, err)
			require.Equal(t, 42, got)
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent misses on one key must run the factory once")
}

func TestGetOrSetDistinctKeysDoNotBlockEachOther(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	// A factory stuck on key "a" must not stall a lookup of key "b".
	release := make(chan struct{})
	go func() {
		_, _ = GetOrSet(ctx, c, "a", Absolute(time.Minute), func(context.Context) (int, error) {
			<-release
			return 1, nil
		})
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		got, err := GetOrSet(ctx, c, "b", Absolute(time.Minute), func(context.Context) (int, error) {
			return 2, nil
		})
		require.NoError(t, err)
		require.Equal(t, 2, got)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lookup of independent key blocked")
	}
	close(release)
}

func TestGetOrSetFactoryErrorIsNotCached(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	boom := errors.New("backend down")
	_, err := GetOrSet(ctx, c, "k", Absolute(time.Minute), func(context.Context) (string, error) {
		return "", boom
	})
	require.ErrorIs(t, err, boom)

	got, err := GetOrSet(ctx, c, "k", Absolute(time.Minute), func(context.Context) (string, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	require.Equal(t, "recovered", got)
}

func TestGetOrSetCorruptEntryTreatedAsMiss(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "{not json", time.Minute))

	got, err := GetOrSet(ctx, c, "k", Absolute(time.Minute), func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, got)
}

func TestGetOrSetContextCanceledWhileWaiting(t *testing.T) {
	c, _ := newTestCache(t)

	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_, _ = GetOrSet(context.Background(), c, "k", Absolute(time.Minute), func(context.Context) (int, error) {
			close(holding)
			<-release
			return 1, nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := GetOrSet(ctx, c, "k", Absolute(time.Minute), func(context.Context) (int, error) {
		return 2, nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestNullProtectionCachesAbsence(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var calls int32
	factory := func(context.Context) (*string, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}

	got, err := GetOrSetWithNullProtection(ctx, c, "missing", Absolute(time.Minute), factory)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = GetOrSetWithNullProtection(ctx, c, "missing", Absolute(time.Minute), factory)
	require.NoError(t, err)
	require.Nil(t, got)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls), "absence must be served from cache")
}

func TestNullProtectionExpiresAndRetries(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }
	c := New(store, zerolog.Nop(), Options{NullTTL: 10 * time.Second})
	ctx := context.Background()

	var calls int32
	_, err := GetOrSetWithNullProtection(ctx, c, "k", Absolute(time.Minute), func(context.Context) (*int, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})
	require.NoError(t, err)

	current = current.Add(11 * time.Second)

	val := 5
	got, err := GetOrSetWithNullProtection(ctx, c, "k", Absolute(time.Minute), func(context.Context) (*int, error) {
		atomic.AddInt32(&calls, 1)
		return &val, nil
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 5, *got)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNullProtectionRealValueRoundTrips(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	type row struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	want := row{ID: "r1", Name: "reader"}

	got, err := GetOrSetWithNullProtection(ctx, c, "row:r1", Absolute(time.Minute), func(context.Context) (*row, error) {
		return &want, nil
	})
	require.NoError(t, err)
	require.Equal(t, want, *got)

	got, err = GetOrSetWithNullProtection(ctx, c, "row:r1", Absolute(time.Minute), func(context.Context) (*row, error) {
		t.Fatal("factory must not run on a hit")
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, want, *got)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var calls int32
	factory := func(context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}

	got, err := GetOrSet(ctx, c, "k", Absolute(time.Minute), factory)
	require.NoError(t, err)
	require.Equal(t, 1, got)

	require.NoError(t, c.Invalidate(ctx, "k"))

	got, err = GetOrSet(ctx, c, "k", Absolute(time.Minute), factory)
	require.NoError(t, err)
	require.Equal(t, 2, got)
}

func TestSlidingTTLRenewedOnHit(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }
	c := New(store, zerolog.Nop(), Options{})
	ctx := context.Background()

	var calls int32
	factory := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}

	_, err := GetOrSet(ctx, c, "k", Sliding(time.Minute), factory)
	require.NoError(t, err)

	// Each hit inside the window pushes the expiry forward.
	for i := 0; i < 3; i++ {
		current = current.Add(40 * time.Second)
		_, err = GetOrSet(ctx, c, "k", Sliding(time.Minute), factory)
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	current = current.Add(2 * time.Minute)
	_, err = GetOrSet(ctx, c, "k", Sliding(time.Minute), factory)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
