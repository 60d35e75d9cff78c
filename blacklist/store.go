package blacklist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable indicates the blacklist backend is unreachable.
var ErrStoreUnavailable = errors.New("blacklist backend unavailable")

// minEntryTTL keeps an entry visible even when the token's natural expiry
// has already passed by the time it is revoked: presence, not freshness,
// is what makes a jti blacklisted.
const minEntryTTL = time.Minute

// Store persists the two revocation registries: jti → expiry and
// userID → revoke-before cutoff.
type Store interface {
	PutToken(ctx context.Context, jti string, expiresAt time.Time, reason string) error
	HasToken(ctx context.Context, jti string) (bool, error)
	PutUserCutoff(ctx context.Context, userID string, cutoff time.Time, ttl time.Duration) error
	UserCutoff(ctx context.Context, userID string) (*time.Time, error)
	// Cleanup removes expired entries for stores that do not self-expire
	// and returns the number removed.
	Cleanup(ctx context.Context) (int, error)
}

// RedisStore is a Store backed by Redis. Entries self-expire, so Cleanup
// is a no-op.
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore creates a redis-backed blacklist Store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) tokenKey(jti string) string {
	return "agbt:" + jti
}

func (s *RedisStore) cutoffKey(userID string) string {
	return "agbu:" + userID
}

// PutToken implements Store.
func (s *RedisStore) PutToken(ctx context.Context, jti string, expiresAt time.Time, reason string) error {
	ttl := time.Until(expiresAt)
	if ttl < minEntryTTL {
		ttl = minEntryTTL
	}
	if err := s.redis.Set(ctx, s.tokenKey(jti), reason, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// HasToken implements Store.
func (s *RedisStore) HasToken(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.tokenKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// PutUserCutoff implements Store.
func (s *RedisStore) PutUserCutoff(ctx context.Context, userID string, cutoff time.Time, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.cutoffKey(userID), cutoff.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// UserCutoff implements Store.
func (s *RedisStore) UserCutoff(ctx context.Context, userID string) (*time.Time, error) {
	val, err := s.redis.Get(ctx, s.cutoffKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	sec, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, nil
	}
	cutoff := time.Unix(sec, 0)
	return &cutoff, nil
}

// Cleanup implements Store. Redis entries expire on their own.
func (s *RedisStore) Cleanup(ctx context.Context) (int, error) {
	return 0, nil
}

type memoryToken struct {
	expiresAt time.Time
	reason    string
}

type memoryCutoff struct {
	cutoff    time.Time
	expiresAt time.Time
}

// MemoryStore is a process-local Store. Unlike Redis it does not
// self-expire, so callers should run Cleanup periodically.
type MemoryStore struct {
	mu      sync.RWMutex
	tokens  map[string]memoryToken
	cutoffs map[string]memoryCutoff
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory blacklist Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:  make(map[string]memoryToken),
		cutoffs: make(map[string]memoryCutoff),
		now:     time.Now,
	}
}

// PutToken implements Store.
func (s *MemoryStore) PutToken(ctx context.Context, jti string, expiresAt time.Time, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	min := s.now().Add(minEntryTTL)
	if expiresAt.Before(min) {
		expiresAt = min
	}
	s.mu.Lock()
	s.tokens[jti] = memoryToken{expiresAt: expiresAt, reason: reason}
	s.mu.Unlock()
	return nil
}

// HasToken implements Store. An entry past its expiry still counts as
// present until Cleanup removes it; expiry gates garbage collection only.
func (s *MemoryStore) HasToken(ctx context.Context, jti string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	_, ok := s.tokens[jti]
	s.mu.RUnlock()
	return ok, nil
}

// PutUserCutoff implements Store.
func (s *MemoryStore) PutUserCutoff(ctx context.Context, userID string, cutoff time.Time, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cutoffs[userID] = memoryCutoff{cutoff: cutoff, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// UserCutoff implements Store. An expired cutoff entry no longer applies.
func (s *MemoryStore) UserCutoff(ctx context.Context, userID string) (*time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entry, ok := s.cutoffs[userID]
	s.mu.RUnlock()
	if !ok || !entry.expiresAt.After(s.now()) {
		return nil, nil
	}
	cutoff := entry.cutoff
	return &cutoff, nil
}

// Cleanup implements Store.
func (s *MemoryStore) Cleanup(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.now()
	removed := 0
	s.mu.Lock()
	for jti, entry := range s.tokens {
		if !entry.expiresAt.After(now) {
			delete(s.tokens, jti)
			removed++
		}
	}
	for userID, entry := range s.cutoffs {
		if !entry.expiresAt.After(now) {
			delete(s.cutoffs, userID)
			removed++
		}
	}
	s.mu.Unlock()
	return removed, nil
}
