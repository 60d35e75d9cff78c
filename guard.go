package accessguard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/accessguard/accessguard/blacklist"
	"github.com/accessguard/accessguard/cache"
	"github.com/accessguard/accessguard/lockout"
	"github.com/accessguard/accessguard/password"
	"github.com/accessguard/accessguard/permission"
	"github.com/accessguard/accessguard/session"
)

// Guard is the assembled access-control core. All methods are safe for
// concurrent use.
type Guard struct {
	cfg       Config
	cache     *cache.Cache
	passwords *password.Engine
	hasher    *password.Hasher
	lockouts  *lockout.Guard
	blacklist *blacklist.Blacklist
	sessions  *session.Manager
	resolver  *permission.Resolver
	metrics   *Metrics
	logger    zerolog.Logger
}

// tokenRevoker bridges session eviction to the blacklist. Token issuance
// uses the session ID as the jti, so blacklisting the session ID kills
// every token minted for that session.
type tokenRevoker struct {
	blacklist *blacklist.Blacklist
	ttl       time.Duration
}

func (r *tokenRevoker) RevokeSessionTokens(ctx context.Context, sess *session.Session, reason string) error {
	return r.blacklist.RevokeToken(ctx, sess.SessionID, time.Now().Add(r.ttl), reason)
}

// Resolver exposes the permission resolver for middleware wiring.
func (g *Guard) Resolver() *permission.Resolver { return g.resolver }

// Cache exposes the shared cache-aside primitive so callers can reuse it
// for their own hot lookups.
func (g *Guard) Cache() *cache.Cache { return g.cache }

// Authorize resolves whether identity may perform the operation named by
// code. Fail-closed: any store uncertainty resolves to Deny.
func (g *Guard) Authorize(ctx context.Context, identity permission.Identity, code string) permission.Decision {
	return g.resolver.Authorize(ctx, identity, code)
}

// AuthorizePolicy resolves a dynamic "permission:<code>" policy name.
func (g *Guard) AuthorizePolicy(ctx context.Context, identity permission.Identity, policyName string) permission.Decision {
	return g.resolver.AuthorizePolicy(ctx, identity, policyName)
}

// ValidatePassword checks a candidate password against the effective
// policy, collecting every violation.
func (g *Guard) ValidatePassword(ctx context.Context, candidate string) password.Result {
	return g.passwords.Validate(ctx, candidate)
}

// PasswordPolicy returns the effective password policy.
func (g *Guard) PasswordPolicy(ctx context.Context) password.Policy {
	return g.passwords.CurrentPolicy(ctx)
}

// HashPassword derives an Argon2id record for storage.
func (g *Guard) HashPassword(candidate string) (string, error) {
	return g.hasher.Hash(candidate)
}

// VerifyPassword checks a candidate against a stored record. Malformed
// records verify as false.
func (g *Guard) VerifyPassword(candidate, encoded string) bool {
	return g.hasher.Verify(candidate, encoded)
}

// PasswordNeedsRehash reports whether a stored record was derived with
// parameters weaker than the current configuration.
func (g *Guard) PasswordNeedsRehash(encoded string) bool {
	return g.hasher.NeedsRehash(encoded)
}

// RecordFailedLogin counts a failed attempt and reports the running count,
// whether this attempt armed a lockout, and the lockout end if one is
// active.
func (g *Guard) RecordFailedLogin(ctx context.Context, username string) (int, bool, *time.Time, error) {
	count, locked, until, err := g.lockouts.RecordFailedLogin(ctx, username)
	if err == nil && locked {
		g.metrics.lockoutTriggered()
	}
	return count, locked, until, err
}

// RecordSuccessfulLogin clears the failure count unless a lockout is
// already in force.
func (g *Guard) RecordSuccessfulLogin(ctx context.Context, username string) error {
	return g.lockouts.RecordSuccessfulLogin(ctx, username)
}

// IsLockedOut reports the lockout end for username, or nil when login may
// proceed.
func (g *Guard) IsLockedOut(ctx context.Context, username string) (*time.Time, error) {
	return g.lockouts.IsLockedOut(ctx, username)
}

// UnlockAccount lifts a lockout ahead of schedule.
func (g *Guard) UnlockAccount(ctx context.Context, username string) error {
	return g.lockouts.Unlock(ctx, username)
}

// RevokeToken blacklists a single token by jti until its natural expiry.
func (g *Guard) RevokeToken(ctx context.Context, jti string, expiresAt time.Time, reason string) error {
	return g.blacklist.RevokeToken(ctx, jti, expiresAt, reason)
}

// RevokeAllUserTokens invalidates every token issued to userID before now.
func (g *Guard) RevokeAllUserTokens(ctx context.Context, userID, reason string) error {
	return g.blacklist.RevokeAllUserTokens(ctx, userID, reason)
}

// IsTokenRejected reports whether a presented token is revoked, either
// individually or by a revoke-all cutoff.
func (g *Guard) IsTokenRejected(ctx context.Context, d blacklist.Descriptor) (bool, error) {
	rejected, err := g.blacklist.IsTokenRejected(ctx, d)
	if err == nil && rejected {
		g.metrics.tokenRejected()
	}
	return rejected, err
}

// CleanupExpiredEntries removes dead blacklist entries on backends without
// native expiry.
func (g *Guard) CleanupExpiredEntries(ctx context.Context) (int, error) {
	return g.blacklist.CleanupExpiredEntries(ctx)
}

// CheckLoginPolicy decides whether a login for (userID, deviceID) may
// proceed under the session admission policy.
func (g *Guard) CheckLoginPolicy(ctx context.Context, userID, deviceID string) (session.Decision, error) {
	decision, err := g.sessions.CheckLoginPolicy(ctx, userID, deviceID)
	if err == nil && decision.Evicted != nil {
		g.metrics.sessionEvicted()
	}
	return decision, err
}

// RecordLoginSession upserts the session row for (userID, deviceID).
func (g *Guard) RecordLoginSession(ctx context.Context, userID, deviceID, deviceType, ip string) (*session.Session, error) {
	return g.sessions.RecordLoginSession(ctx, userID, deviceID, deviceType, ip)
}

// TouchSession advances the session's activity timestamp.
func (g *Guard) TouchSession(ctx context.Context, userID, deviceID string) error {
	return g.sessions.TouchSession(ctx, userID, deviceID)
}

// EndSession removes the session and revokes its tokens.
func (g *Guard) EndSession(ctx context.Context, userID, deviceID string) error {
	return g.sessions.EndSession(ctx, userID, deviceID)
}

// GetUserSessions lists the user's live sessions, marking the caller's
// own.
func (g *Guard) GetUserSessions(ctx context.Context, userID, currentSessionID string) ([]session.Info, error) {
	return g.sessions.GetUserSessions(ctx, userID, currentSessionID)
}

// SessionPolicy returns the effective session admission policy.
func (g *Guard) SessionPolicy(ctx context.Context) session.Policy {
	return g.sessions.CurrentPolicy(ctx)
}
