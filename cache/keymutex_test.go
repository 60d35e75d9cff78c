package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyMutexRegistryShrinksToZero(t *testing.T) {
	r := newKeyMutexRegistry()
	ctx := context.Background()

	km, err := r.acquire(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 1, r.size())

	r.release("k", km)
	require.Equal(t, 0, r.size(), "registry must not retain idle entries")
}

func TestKeyMutexRegistryContention(t *testing.T) {
	r := newKeyMutexRegistry()
	ctx := context.Background()

	var inside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km, err := r.acquire(ctx, "k")
			require.NoError(t, err)
			inside++
			if inside != 1 {
				t.Error("two holders inside the critical section")
			}
			inside--
			r.release("k", km)
		}()
	}
	wg.Wait()
	require.Equal(t, 0, r.size())
}

func TestKeyMutexAcquireHonorsContext(t *testing.T) {
	r := newKeyMutexRegistry()

	km, err := r.acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.acquire(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	r.release("k", km)
	require.Equal(t, 0, r.size(), "canceled waiter must not leak a reference")
}
