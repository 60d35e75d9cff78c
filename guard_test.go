package accessguard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/accessguard/accessguard/blacklist"
	"github.com/accessguard/accessguard/config"
	"github.com/accessguard/accessguard/permission"
)

type staticRoleStore struct {
	roles  map[string][]permission.Role
	grants map[string]map[string]bool
}

func (s *staticRoleStore) GetUserRoles(ctx context.Context, userID string) ([]permission.Role, error) {
	return s.roles[userID], nil
}

func (s *staticRoleStore) HasPermission(ctx context.Context, roleID, code string) (bool, error) {
	return s.grants[roleID][code], nil
}

func newTestGuard(t *testing.T, values map[string]string) *Guard {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := &staticRoleStore{
		roles:  map[string][]permission.Role{"u1": {{ID: "r-editor", Name: "editor"}}},
		grants: map[string]map[string]bool{"r-editor": {"article.edit": true}},
	}

	guard, err := NewBuilder().
		WithRedis(rdb).
		WithRoleStore(store).
		WithSettings(config.NewStatic(values)).
		WithMetrics(prometheus.NewRegistry()).
		Build()
	require.NoError(t, err)
	return guard
}

func TestBuildRequiresRedisAndRoleStore(t *testing.T) {
	_, err := NewBuilder().WithRoleStore(&staticRoleStore{}).Build()
	require.ErrorIs(t, err, ErrRedisRequired)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	_, err = NewBuilder().WithRedis(rdb).Build()
	require.ErrorIs(t, err, ErrRoleStoreRequired)
}

func TestBuilderIsSingleUse(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := NewBuilder().WithRedis(rdb).WithRoleStore(&staticRoleStore{})
	_, err = b.Build()
	require.NoError(t, err)

	_, err = b.Build()
	require.ErrorIs(t, err, ErrBuilderReused)
}

func TestGuardAuthorize(t *testing.T) {
	guard := newTestGuard(t, nil)
	ctx := context.Background()

	id := permission.Identity{Subject: "u1"}
	require.Equal(t, permission.Grant, guard.Authorize(ctx, id, "article.edit"))
	require.Equal(t, permission.Deny, guard.Authorize(ctx, id, "article.delete"))

	admin := permission.Identity{Subject: "u9", Roles: []string{"super_admin"}}
	require.Equal(t, permission.Grant, guard.Authorize(ctx, admin, "anything"))

	require.Equal(t, permission.Grant, guard.AuthorizePolicy(ctx, id, "permission:article.edit"))
}

func TestGuardPasswordFlow(t *testing.T) {
	guard := newTestGuard(t, nil)
	ctx := context.Background()

	res := guard.ValidatePassword(ctx, "Tr0ub4dor&3x")
	require.True(t, res.Valid, "errors: %v", res.Errors)
	require.False(t, guard.ValidatePassword(ctx, "weak").Valid)

	encoded, err := guard.HashPassword("Tr0ub4dor&3x")
	require.NoError(t, err)
	require.True(t, guard.VerifyPassword("Tr0ub4dor&3x", encoded))
	require.False(t, guard.VerifyPassword("wrong", encoded))
	require.False(t, guard.PasswordNeedsRehash(encoded))
}

func TestGuardLockoutFlow(t *testing.T) {
	guard := newTestGuard(t, map[string]string{
		"security:lockout:max_attempts": "2",
	})
	ctx := context.Background()

	_, locked, _, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	require.False(t, locked)

	_, locked, until, err := guard.RecordFailedLogin(ctx, "alice")
	require.NoError(t, err)
	require.True(t, locked)
	require.NotNil(t, until)

	require.NoError(t, guard.UnlockAccount(ctx, "alice"))
	end, err := guard.IsLockedOut(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, end)
}

func TestEvictionRevokesSessionTokens(t *testing.T) {
	guard := newTestGuard(t, map[string]string{
		"security:sessions:max_devices":       "1",
		"security:sessions:new_device_policy": "kick_oldest",
	})
	ctx := context.Background()

	sess, err := guard.RecordLoginSession(ctx, "u1", "dev-a", "web", "10.0.0.1")
	require.NoError(t, err)

	decision, err := guard.CheckLoginPolicy(ctx, "u1", "dev-b")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.NotNil(t, decision.Evicted)

	// Tokens are minted with jti == session ID, so the evicted session's
	// tokens are now rejected.
	rejected, err := guard.IsTokenRejected(ctx, blacklist.Descriptor{JTI: sess.SessionID})
	require.NoError(t, err)
	require.True(t, rejected)
}

func TestEndSessionRevokesTokens(t *testing.T) {
	guard := newTestGuard(t, nil)
	ctx := context.Background()

	sess, err := guard.RecordLoginSession(ctx, "u1", "dev-a", "web", "10.0.0.1")
	require.NoError(t, err)
	require.NoError(t, guard.EndSession(ctx, "u1", "dev-a"))

	rejected, err := guard.IsTokenRejected(ctx, blacklist.Descriptor{JTI: sess.SessionID})
	require.NoError(t, err)
	require.True(t, rejected)

	infos, err := guard.GetUserSessions(ctx, "u1", sess.SessionID)
	require.NoError(t, err)
	require.Empty(t, infos)
}

func TestGuardRevokeAllUserTokens(t *testing.T) {
	guard := newTestGuard(t, nil)
	ctx := context.Background()

	issuedBefore := time.Now().Add(-time.Minute)
	require.NoError(t, guard.RevokeAllUserTokens(ctx, "u1", blacklist.ReasonPasswordChange))

	rejected, err := guard.IsTokenRejected(ctx, blacklist.Descriptor{
		JTI: "some-jti", UserID: "u1", IssuedAt: issuedBefore,
	})
	require.NoError(t, err)
	require.True(t, rejected)
}
