// Package config provides a hierarchical configuration source consumed by
// the lockout and password-policy components. Keys are colon-delimited
// (e.g. "security:lockout:max_attempts"); every getter takes a typed
// default that is returned when the key is absent or unparseable.
package config

import (
	"strconv"
	"strings"
	"time"
)

// Source is a read-only view over hierarchical configuration.
//
// Implementations must be safe for concurrent use. Callers treat lookups
// as cheap but not free: hot-path consumers cache resolved snapshots with
// their own TTL rather than hitting the source on every request.
type Source interface {
	// Get returns the raw string value for key and whether it was present.
	Get(key string) (string, bool)
}

// GetString returns the value for key, or def when absent.
func GetString(s Source, key, def string) string {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	return v
}

// GetInt returns the value for key parsed as an integer, or def when
// absent or unparseable.
func GetInt(s Source, key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// GetBool returns the value for key parsed as a boolean, or def when
// absent or unparseable.
func GetBool(s Source, key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// GetDuration returns the value for key parsed as a time.Duration
// ("15m", "300s"), or def when absent or unparseable.
func GetDuration(s Source, key string, def time.Duration) time.Duration {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}
