package blacklist

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestBlacklist(t *testing.T) (*Blacklist, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return New(store, zerolog.Nop(), 0), store
}

func TestRevokeTokenByJTI(t *testing.T) {
	bl, _ := newTestBlacklist(t)
	ctx := context.Background()

	revoked, err := bl.IsTokenBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, bl.RevokeToken(ctx, "jti-1", time.Now().Add(time.Hour), ReasonLogout))

	revoked, err = bl.IsTokenBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = bl.IsTokenBlacklisted(ctx, "jti-2")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRevokeTokenEmptyJTIIsNoOp(t *testing.T) {
	bl, store := newTestBlacklist(t)
	require.NoError(t, bl.RevokeToken(context.Background(), "", time.Now(), ReasonManual))
	require.Empty(t, store.tokens)
}

func TestCutoffRejectsOlderTokensOnly(t *testing.T) {
	bl, _ := newTestBlacklist(t)
	ctx := context.Background()

	revokedAt := time.Now()
	bl.now = func() time.Time { return revokedAt }
	require.NoError(t, bl.RevokeAllUserTokens(ctx, "u1", ReasonPasswordChange))

	before := Descriptor{JTI: "old", UserID: "u1", IssuedAt: revokedAt.Add(-time.Minute)}
	rejected, err := bl.IsTokenRejected(ctx, before)
	require.NoError(t, err)
	require.True(t, rejected, "tokens issued before the cutoff must be rejected")

	after := Descriptor{JTI: "new", UserID: "u1", IssuedAt: revokedAt.Add(time.Minute)}
	rejected, err = bl.IsTokenRejected(ctx, after)
	require.NoError(t, err)
	require.False(t, rejected, "tokens issued after the cutoff stay valid")

	otherUser := Descriptor{JTI: "x", UserID: "u2", IssuedAt: revokedAt.Add(-time.Minute)}
	rejected, err = bl.IsTokenRejected(ctx, otherUser)
	require.NoError(t, err)
	require.False(t, rejected)
}

func TestIsTokenRejectedChecksBothRegistries(t *testing.T) {
	bl, _ := newTestBlacklist(t)
	ctx := context.Background()

	require.NoError(t, bl.RevokeToken(ctx, "jti-1", time.Now().Add(time.Hour), ReasonManual))

	rejected, err := bl.IsTokenRejected(ctx, Descriptor{JTI: "jti-1", UserID: "u1", IssuedAt: time.Now()})
	require.NoError(t, err)
	require.True(t, rejected, "an individually revoked jti is rejected regardless of cutoff")

	// Missing issue time skips the cutoff check entirely.
	require.NoError(t, bl.RevokeAllUserTokens(ctx, "u2", ReasonManual))
	rejected, err = bl.IsTokenRejected(ctx, Descriptor{JTI: "other", UserID: "u2"})
	require.NoError(t, err)
	require.False(t, rejected)
}

func TestExpiredEntryStillPresentUntilCleanup(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }
	bl := New(store, zerolog.Nop(), 0)
	ctx := context.Background()

	require.NoError(t, bl.RevokeToken(ctx, "jti-1", current.Add(time.Hour), ReasonLogout))

	current = current.Add(2 * time.Hour)
	revoked, err := bl.IsTokenBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked, "presence decides until garbage collection runs")

	removed, err := bl.CleanupExpiredEntries(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	revoked, err = bl.IsTokenBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestExpiredCutoffNoLongerApplies(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }
	bl := New(store, zerolog.Nop(), time.Hour)
	bl.now = func() time.Time { return current }
	ctx := context.Background()

	require.NoError(t, bl.RevokeAllUserTokens(ctx, "u1", ReasonManual))

	old := Descriptor{UserID: "u1", IssuedAt: current.Add(-time.Minute)}
	rejected, err := bl.IsTokenRejected(ctx, old)
	require.NoError(t, err)
	require.True(t, rejected)

	current = current.Add(2 * time.Hour)
	rejected, err = bl.IsTokenRejected(ctx, old)
	require.NoError(t, err)
	require.False(t, rejected)
}

func TestDescriptorFromClaims(t *testing.T) {
	issued := time.Now().Truncate(time.Second)
	d := DescriptorFromClaims(jwt.RegisteredClaims{
		ID:       "jti-1",
		Subject:  "u1",
		IssuedAt: jwt.NewNumericDate(issued),
	})
	require.Equal(t, "jti-1", d.JTI)
	require.Equal(t, "u1", d.UserID)
	require.True(t, d.IssuedAt.Equal(issued))

	empty := DescriptorFromClaims(jwt.RegisteredClaims{})
	require.Empty(t, empty.JTI)
	require.True(t, empty.IssuedAt.IsZero())
}

func TestRedisStoreRegistries(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedisStore(rdb)
	ctx := context.Background()

	require.NoError(t, store.PutToken(ctx, "jti-1", time.Now().Add(time.Hour), ReasonLogout))
	ok, err := store.HasToken(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, ok)

	// Entries expire with the token's natural lifetime.
	mr.FastForward(2 * time.Hour)
	ok, err = store.HasToken(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, ok)

	cutoffTime := time.Now().Truncate(time.Second)
	require.NoError(t, store.PutUserCutoff(ctx, "u1", cutoffTime, time.Hour))
	got, err := store.UserCutoff(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.Equal(cutoffTime))

	removed, err := store.Cleanup(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)
}
