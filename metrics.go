package accessguard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/accessguard/accessguard/cache"
	"github.com/accessguard/accessguard/permission"
)

var (
	_ cache.Metrics      = (*Metrics)(nil)
	_ permission.Metrics = (*Metrics)(nil)
)

// Metrics exposes the core's counters on a Prometheus registerer. All
// methods are safe on a nil receiver, so unmetered builds skip the
// instrumentation without branching at every call site.
type Metrics struct {
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheCollapsed  prometheus.Counter
	authzGranted    prometheus.Counter
	authzDenied     prometheus.Counter
	lockouts        prometheus.Counter
	sessionsEvicted prometheus.Counter
	tokensRejected  prometheus.Counter
}

func newMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		cacheHits:       counter("cache_hits_total", "Cache lookups served from the store."),
		cacheMisses:     counter("cache_misses_total", "Cache lookups that fell through to the factory path."),
		cacheCollapsed:  counter("cache_collapsed_total", "Cache misses resolved by a concurrent caller's factory run."),
		authzGranted:    counter("authz_granted_total", "Authorization checks resolved as grant."),
		authzDenied:     counter("authz_denied_total", "Authorization checks resolved as deny."),
		lockouts:        counter("lockouts_total", "Accounts locked after exceeding the failure threshold."),
		sessionsEvicted: counter("sessions_evicted_total", "Sessions evicted by the kick_oldest admission policy."),
		tokensRejected:  counter("tokens_rejected_total", "Tokens rejected by the blacklist or a revocation cutoff."),
	}
}

// CacheHit implements cache.Metrics.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// CacheMiss implements cache.Metrics.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// CacheCollapsed implements cache.Metrics.
func (m *Metrics) CacheCollapsed() {
	if m == nil {
		return
	}
	m.cacheCollapsed.Inc()
}

// AuthorizeGranted implements permission.Metrics.
func (m *Metrics) AuthorizeGranted() {
	if m == nil {
		return
	}
	m.authzGranted.Inc()
}

// AuthorizeDenied implements permission.Metrics.
func (m *Metrics) AuthorizeDenied() {
	if m == nil {
		return
	}
	m.authzDenied.Inc()
}

func (m *Metrics) lockoutTriggered() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

func (m *Metrics) sessionEvicted() {
	if m == nil {
		return
	}
	m.sessionsEvicted.Inc()
}

func (m *Metrics) tokenRejected() {
	if m == nil {
		return
	}
	m.tokensRejected.Inc()
}
