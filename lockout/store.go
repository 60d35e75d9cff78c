package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable indicates the lockout backend is unreachable.
// Transient store failures propagate to the login flow; the guard never
// swallows them.
var ErrStoreUnavailable = errors.New("lockout backend unavailable")

// Store tracks failed-login counters and lockout deadlines. RecordFailure
// must be atomic: when multiple process instances serve the same username
// concurrently, increment-and-read is the store's responsibility, not the
// guard's.
type Store interface {
	// RecordFailure increments the failure counter for username and, when
	// the new count reaches maxAttempts, sets a lockout deadline of
	// now+duration. It returns the new count, whether the account is now
	// locked, and the deadline when locked.
	RecordFailure(ctx context.Context, username string, maxAttempts int, duration time.Duration) (int, bool, *time.Time, error)
	// ResetFailures clears the failure counter for username.
	ResetFailures(ctx context.Context, username string) error
	// Unlock clears both the failure counter and any active lockout.
	Unlock(ctx context.Context, username string) error
	// LockoutEnd returns the active lockout deadline for username, or nil.
	LockoutEnd(ctx context.Context, username string) (*time.Time, error)
}

// recordFailureScript increments the counter and arms the lockout in one
// atomic step. The counter carries a rolling-window TTL set on the first
// failure.
//
// KEYS[1] = counter key, KEYS[2] = lock key
// ARGV[1] = window/lock TTL ms, ARGV[2] = max attempts, ARGV[3] = lockout end unix ms
const recordFailureScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if count >= tonumber(ARGV[2]) then
  redis.call("SET", KEYS[2], ARGV[3], "PX", ARGV[1])
  return {count, 1}
end
return {count, 0}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// RedisStore is a Store backed by Redis.
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore creates a redis-backed lockout Store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) counterKey(username string) string {
	return "aglf:" + username
}

func (s *RedisStore) lockKey(username string) string {
	return "agll:" + username
}

// RecordFailure implements Store via a Lua script so the increment and the
// lock arming cannot interleave across instances.
func (s *RedisStore) RecordFailure(ctx context.Context, username string, maxAttempts int, duration time.Duration) (int, bool, *time.Time, error) {
	end := time.Now().Add(duration)
	result, err := recordFailureLua.Run(
		ctx,
		s.redis,
		[]string{s.counterKey(username), s.lockKey(username)},
		duration.Milliseconds(),
		maxAttempts,
		end.UnixMilli(),
	).Result()
	if err != nil {
		return 0, false, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return 0, false, nil, fmt.Errorf("%w: invalid record-failure script response", ErrStoreUnavailable)
	}
	count, ok1 := parts[0].(int64)
	locked, ok2 := parts[1].(int64)
	if !ok1 || !ok2 {
		return 0, false, nil, fmt.Errorf("%w: invalid record-failure script response", ErrStoreUnavailable)
	}

	if locked == 1 {
		return int(count), true, &end, nil
	}
	return int(count), false, nil, nil
}

// ResetFailures implements Store.
func (s *RedisStore) ResetFailures(ctx context.Context, username string) error {
	if err := s.redis.Del(ctx, s.counterKey(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Unlock implements Store.
func (s *RedisStore) Unlock(ctx context.Context, username string) error {
	if err := s.redis.Del(ctx, s.counterKey(username), s.lockKey(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// LockoutEnd implements Store. The lock key self-expires, so a present key
// is an active lockout by construction; the stored deadline is still
// compared against now to guard against clock drift between writers.
func (s *RedisStore) LockoutEnd(ctx context.Context, username string) (*time.Time, error) {
	val, err := s.redis.Get(ctx, s.lockKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, nil
	}
	end := time.UnixMilli(ms)
	if !end.After(time.Now()) {
		return nil, nil
	}
	return &end, nil
}
