package accessguard

import (
	"errors"
	"time"

	"github.com/accessguard/accessguard/blacklist"
	"github.com/accessguard/accessguard/cache"
	"github.com/accessguard/accessguard/password"
	"github.com/accessguard/accessguard/permission"
)

// Config tunes the pieces of the core that are fixed at construction time.
// Runtime-adjustable policy (lockout thresholds, password rules, session
// limits) comes from the config.Source instead and is re-read on the cache
// interval.
type Config struct {
	// SuperAdminRole is the role name that bypasses permission checks.
	// Empty selects permission.DefaultSuperAdminRole.
	SuperAdminRole string

	// CachePrefix namespaces cache keys in the shared Redis deployment.
	// Empty selects the cache package default.
	CachePrefix string

	// NullTTL bounds how long a known-absent cache result is remembered.
	// Zero selects cache.DefaultNullTTL.
	NullTTL time.Duration

	// Hasher holds the Argon2id cost parameters. Zero value selects
	// password.DefaultHasherConfig.
	Hasher password.HasherConfig

	// CutoffTTL bounds how long a revoke-all cutoff stays effective. Zero
	// selects blacklist.DefaultCutoffTTL.
	CutoffTTL time.Duration

	// SessionTokenTTL is how long tokens bound to an evicted or ended
	// session stay blacklisted. It should cover the refresh token
	// lifetime. Zero selects 7 days.
	SessionTokenTTL time.Duration

	// MetricsNamespace prefixes the Prometheus metric names. Empty
	// selects "accessguard".
	MetricsNamespace string
}

func defaultConfig() Config {
	return Config{
		SuperAdminRole:   permission.DefaultSuperAdminRole,
		NullTTL:          cache.DefaultNullTTL,
		Hasher:           password.DefaultHasherConfig(),
		CutoffTTL:        blacklist.DefaultCutoffTTL,
		SessionTokenTTL:  7 * 24 * time.Hour,
		MetricsNamespace: "accessguard",
	}
}

// withDefaults fills zero-valued fields from defaultConfig.
func (c Config) withDefaults() Config {
	def := defaultConfig()
	if c.SuperAdminRole == "" {
		c.SuperAdminRole = def.SuperAdminRole
	}
	if c.NullTTL <= 0 {
		c.NullTTL = def.NullTTL
	}
	if c.Hasher == (password.HasherConfig{}) {
		c.Hasher = def.Hasher
	}
	if c.CutoffTTL <= 0 {
		c.CutoffTTL = def.CutoffTTL
	}
	if c.SessionTokenTTL <= 0 {
		c.SessionTokenTTL = def.SessionTokenTTL
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = def.MetricsNamespace
	}
	return c
}

// Validate reports the first configuration problem, if any. Hasher
// parameters are validated again by password.NewHasher.
func (c Config) Validate() error {
	if c.NullTTL < 0 {
		return errors.New("null ttl must not be negative")
	}
	if c.CutoffTTL < 0 {
		return errors.New("cutoff ttl must not be negative")
	}
	if c.SessionTokenTTL < 0 {
		return errors.New("session token ttl must not be negative")
	}
	return nil
}
