// Package lockout throttles credential guessing. A guard tracks failed
// login attempts per username and locks the account once the configured
// threshold is reached. Counter mutation is delegated to the Store as a
// single atomic record-failure operation; settings are read from
// configuration and cached to keep login attempts off the config source.
package lockout

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/accessguard/accessguard/cache"
	"github.com/accessguard/accessguard/config"
)

// settingsTTL bounds staleness after a remote settings change.
const settingsTTL = 5 * time.Minute

const settingsCacheKey = "lockout:settings"

// Settings is a point-in-time snapshot of the lockout configuration.
type Settings struct {
	Enabled     bool `json:"enabled"`
	MaxAttempts int  `json:"max_attempts"`
	// DurationMinutes is both the lockout length and the rolling window
	// over which failures are counted.
	DurationMinutes int `json:"duration_minutes"`
}

// DefaultSettings returns the lockout behavior applied when configuration
// is absent.
func DefaultSettings() Settings {
	return Settings{Enabled: true, MaxAttempts: 5, DurationMinutes: 15}
}

// Duration returns the lockout length as a time.Duration.
func (s Settings) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Guard is the brute-force lockout state machine. A username is either
// unlocked (with a failure count) or locked until a deadline; the deadline
// passing is a passive transition back to unlocked.
type Guard struct {
	store  Store
	source config.Source
	cache  *cache.Cache
	logger zerolog.Logger
	now    func() time.Time
}

// NewGuard creates a lockout guard over the given store and configuration
// source.
func NewGuard(store Store, source config.Source, c *cache.Cache, logger zerolog.Logger) *Guard {
	return &Guard{
		store:  store,
		source: source,
		cache:  c,
		logger: logger,
		now:    time.Now,
	}
}

// CurrentSettings returns the effective settings snapshot, cached for
// 5 minutes. A cache failure falls back to defaults.
func (g *Guard) CurrentSettings(ctx context.Context) Settings {
	settings, err := cache.GetOrSet(ctx, g.cache, settingsCacheKey, cache.Absolute(settingsTTL), func(ctx context.Context) (Settings, error) {
		return g.loadSettings(), nil
	})
	if err != nil {
		g.logger.Warn().Err(err).Msg("lockout settings load failed, using defaults")
		return DefaultSettings()
	}
	return settings
}

func (g *Guard) loadSettings() Settings {
	def := DefaultSettings()
	return Settings{
		Enabled:         config.GetBool(g.source, "security:lockout:enabled", def.Enabled),
		MaxAttempts:     config.GetInt(g.source, "security:lockout:max_attempts", def.MaxAttempts),
		DurationMinutes: config.GetInt(g.source, "security:lockout:duration_minutes", def.DurationMinutes),
	}
}

// RecordFailedLogin registers a failed attempt for username and returns the
// new failure count, whether the account is now locked, and the lockout
// deadline when locked. When the feature is disabled it is a no-op
// returning (0, false, nil).
func (g *Guard) RecordFailedLogin(ctx context.Context, username string) (int, bool, *time.Time, error) {
	settings := g.CurrentSettings(ctx)
	if !settings.Enabled || username == "" {
		return 0, false, nil, nil
	}
	return g.store.RecordFailure(ctx, username, settings.MaxAttempts, settings.Duration())
}

// RecordSuccessfulLogin resets the failure counter. The reset applies only
// while unlocked: a success during an active lockout (for example a session
// that authenticated through another credential path) leaves the lock and
// its counter in place.
func (g *Guard) RecordSuccessfulLogin(ctx context.Context, username string) error {
	settings := g.CurrentSettings(ctx)
	if !settings.Enabled || username == "" {
		return nil
	}

	end, err := g.store.LockoutEnd(ctx, username)
	if err != nil {
		return err
	}
	if end != nil && end.After(g.now()) {
		return nil
	}
	return g.store.ResetFailures(ctx, username)
}

// IsLockedOut returns the active lockout deadline for username, or nil when
// the account is not locked (including when the feature is disabled).
func (g *Guard) IsLockedOut(ctx context.Context, username string) (*time.Time, error) {
	settings := g.CurrentSettings(ctx)
	if !settings.Enabled || username == "" {
		return nil, nil
	}

	end, err := g.store.LockoutEnd(ctx, username)
	if err != nil {
		return nil, err
	}
	if end == nil || !end.After(g.now()) {
		return nil, nil
	}
	return end, nil
}

// Unlock is the administrative override: it clears the counter and any
// active lockout immediately, regardless of feature state.
func (g *Guard) Unlock(ctx context.Context, username string) error {
	if username == "" {
		return nil
	}
	g.logger.Info().Str("username", username).Msg("administrative unlock")
	return g.store.Unlock(ctx, username)
}
