package accessguard

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/accessguard/accessguard/blacklist"
	"github.com/accessguard/accessguard/cache"
	"github.com/accessguard/accessguard/config"
	"github.com/accessguard/accessguard/lockout"
	"github.com/accessguard/accessguard/password"
	"github.com/accessguard/accessguard/permission"
	"github.com/accessguard/accessguard/session"
)

// Builder assembles a Guard. Zero value is not usable; start from
// NewBuilder. A builder is single-use.
type Builder struct {
	cfg        Config
	client     redis.UniversalClient
	roleStore  permission.RoleStore
	source     config.Source
	cacheStore cache.Store
	registerer prometheus.Registerer
	logger     zerolog.Logger
	loggerSet  bool
	built      bool
}

// NewBuilder returns a builder with default configuration.
func NewBuilder() *Builder {
	return &Builder{cfg: defaultConfig()}
}

// WithConfig replaces the construction-time configuration. Zero-valued
// fields fall back to defaults at Build.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithRedis sets the Redis client backing the hot stores. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.client = client
	return b
}

// WithRoleStore sets the role/grant relation. Required.
func (b *Builder) WithRoleStore(store permission.RoleStore) *Builder {
	b.roleStore = store
	return b
}

// WithSettings sets the runtime settings source. Defaults to
// config.NewEnv("AG") reading process environment variables.
func (b *Builder) WithSettings(source config.Source) *Builder {
	b.source = source
	return b
}

// WithCacheStore overrides the cache backend. Defaults to a Redis store
// over the client from WithRedis.
func (b *Builder) WithCacheStore(store cache.Store) *Builder {
	b.cacheStore = store
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	b.loggerSet = true
	return b
}

// WithMetrics registers the core's counters on reg.
func (b *Builder) WithMetrics(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// Build validates the configuration and wires the subsystems together.
func (b *Builder) Build() (*Guard, error) {
	if b.built {
		return nil, ErrBuilderReused
	}
	b.built = true

	cfg := b.cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if b.client == nil {
		return nil, ErrRedisRequired
	}
	if b.roleStore == nil {
		return nil, ErrRoleStoreRequired
	}

	source := b.source
	if source == nil {
		source = config.NewEnv("AG")
	}
	logger := zerolog.Nop()
	if b.loggerSet {
		logger = b.logger
	}

	var metrics *Metrics
	if b.registerer != nil {
		metrics = newMetrics(cfg.MetricsNamespace, b.registerer)
	}

	cacheStore := b.cacheStore
	if cacheStore == nil {
		cacheStore = cache.NewRedisStore(b.client, cfg.CachePrefix)
	}
	cacheOpts := cache.Options{NullTTL: cfg.NullTTL}
	if metrics != nil {
		cacheOpts.Metrics = metrics
	}
	shared := cache.New(cacheStore, logger, cacheOpts)

	hasher, err := password.NewHasher(cfg.Hasher)
	if err != nil {
		return nil, fmt.Errorf("invalid hasher config: %w", err)
	}

	bl := blacklist.New(blacklist.NewRedisStore(b.client), logger, cfg.CutoffTTL)

	resolver := permission.NewResolver(b.roleStore, cfg.SuperAdminRole, logger)
	if metrics != nil {
		resolver.SetMetrics(metrics)
	}

	sessions := session.NewManager(
		session.NewRedisStore(b.client),
		&tokenRevoker{blacklist: bl, ttl: cfg.SessionTokenTTL},
		source,
		shared,
		logger,
	)

	return &Guard{
		cfg:       cfg,
		cache:     shared,
		passwords: password.NewEngine(source, shared, logger),
		hasher:    hasher,
		lockouts:  lockout.NewGuard(lockout.NewRedisStore(b.client), source, shared, logger),
		blacklist: bl,
		sessions:  sessions,
		resolver:  resolver,
		metrics:   metrics,
		logger:    logger,
	}, nil
}
