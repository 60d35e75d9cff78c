// Package blacklist is the token revocation registry. It tracks two
// independent maps: individually revoked token IDs (jti → expiry) and
// per-user cutoffs (userID → revoke-before timestamp) for mass "log out
// everywhere" events such as a password change.
package blacklist

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Revocation reasons recorded alongside jti entries.
const (
	ReasonLogout         = "logout"
	ReasonPasswordChange = "password_change"
	ReasonSessionEvicted = "session_evicted"
	ReasonManual         = "manual_revoke"
)

// DefaultCutoffTTL bounds how long a user cutoff stays active. It only
// needs to outlive the longest token the issuer mints.
const DefaultCutoffTTL = 30 * 24 * time.Hour

// Descriptor identifies a presented token for rejection checks.
type Descriptor struct {
	JTI      string
	UserID   string
	IssuedAt time.Time
}

// DescriptorFromClaims extracts a Descriptor from standard JWT claims
// (jti, sub, iat). Missing claims yield zero fields; the corresponding
// registry check is then skipped.
func DescriptorFromClaims(claims jwt.RegisteredClaims) Descriptor {
	d := Descriptor{JTI: claims.ID, UserID: claims.Subject}
	if claims.IssuedAt != nil {
		d.IssuedAt = claims.IssuedAt.Time
	}
	return d
}

// Blacklist coordinates the two revocation registries over a Store.
type Blacklist struct {
	store     Store
	logger    zerolog.Logger
	cutoffTTL time.Duration
	now       func() time.Time
}

// New creates a Blacklist. cutoffTTL <= 0 selects DefaultCutoffTTL.
func New(store Store, logger zerolog.Logger, cutoffTTL time.Duration) *Blacklist {
	if cutoffTTL <= 0 {
		cutoffTTL = DefaultCutoffTTL
	}
	return &Blacklist{store: store, logger: logger, cutoffTTL: cutoffTTL, now: time.Now}
}

// RevokeToken blacklists a single token by jti until its natural expiry
// has long passed.
func (b *Blacklist) RevokeToken(ctx context.Context, jti string, expiresAt time.Time, reason string) error {
	if jti == "" {
		return nil
	}
	if reason == "" {
		reason = ReasonManual
	}
	if err := b.store.PutToken(ctx, jti, expiresAt, reason); err != nil {
		return err
	}
	b.logger.Info().Str("jti", jti).Str("reason", reason).Msg("token revoked")
	return nil
}

// RevokeAllUserTokens sets the user's cutoff to now: every token issued
// before this moment is rejected from here on.
func (b *Blacklist) RevokeAllUserTokens(ctx context.Context, userID, reason string) error {
	if userID == "" {
		return nil
	}
	if reason == "" {
		reason = ReasonManual
	}
	if err := b.store.PutUserCutoff(ctx, userID, b.now(), b.cutoffTTL); err != nil {
		return err
	}
	b.logger.Info().Str("user_id", userID).Str("reason", reason).Msg("all user tokens revoked")
	return nil
}

// IsTokenBlacklisted reports whether the jti is individually revoked.
// Presence alone decides: an entry whose natural expiry has passed still
// counts until garbage collection removes it, since an expired token is
// already invalid on other grounds.
func (b *Blacklist) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	return b.store.HasToken(ctx, jti)
}

// IsTokenRejected reports whether the described token must be refused:
// either its jti is individually revoked or it was issued before the
// user's active cutoff.
func (b *Blacklist) IsTokenRejected(ctx context.Context, d Descriptor) (bool, error) {
	if d.JTI != "" {
		revoked, err := b.store.HasToken(ctx, d.JTI)
		if err != nil {
			return false, err
		}
		if revoked {
			return true, nil
		}
	}

	if d.UserID == "" || d.IssuedAt.IsZero() {
		return false, nil
	}
	cutoff, err := b.store.UserCutoff(ctx, d.UserID)
	if err != nil {
		return false, err
	}
	if cutoff != nil && d.IssuedAt.Before(*cutoff) {
		return true, nil
	}
	return false, nil
}

// CleanupExpiredEntries removes entries whose expiry has passed. Needed
// only for backing stores that are not self-expiring.
func (b *Blacklist) CleanupExpiredEntries(ctx context.Context) (int, error) {
	removed, err := b.store.Cleanup(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		b.logger.Debug().Int("removed", removed).Msg("blacklist cleanup")
	}
	return removed, nil
}
