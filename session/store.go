package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable indicates the session backend is unreachable.
var ErrStoreUnavailable = errors.New("session backend unavailable")

// Store persists session rows keyed by (userID, deviceID).
type Store interface {
	// Save upserts the row for (sess.UserID, sess.DeviceID) with the
	// given TTL.
	Save(ctx context.Context, sess *Session, ttl time.Duration) error
	// Find returns the row for (userID, deviceID), or nil when absent.
	Find(ctx context.Context, userID, deviceID string) (*Session, error)
	// ListByUser returns all live rows for userID.
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	// Delete removes the row for (userID, deviceID). Removing an absent
	// row is not an error.
	Delete(ctx context.Context, userID, deviceID string) error
}

// RedisStore is a Store backed by Redis. Each row lives under its own key
// with a TTL; a per-user set indexes device IDs. Index entries whose row
// has expired are dropped lazily on list.
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore creates a redis-backed session Store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) key(userID, deviceID string) string {
	return "ags:" + userID + ":" + deviceID
}

func (s *RedisStore) indexKey(userID string) string {
	return "agsu:" + userID
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.UserID, sess.DeviceID), data, ttl)
		pipe.SAdd(ctx, s.indexKey(sess.UserID), sess.DeviceID)
		pipe.Expire(ctx, s.indexKey(sess.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Find implements Store.
func (s *RedisStore) Find(ctx context.Context, userID, deviceID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(userID, deviceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: corrupt session row: %v", ErrStoreUnavailable, err)
	}
	return &sess, nil
}

// ListByUser implements Store.
func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	deviceIDs, err := s.redis.SMembers(ctx, s.indexKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(deviceIDs) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(deviceIDs))
	for i, deviceID := range deviceIDs {
		cmds[i] = pipe.Get(ctx, s.key(userID, deviceID))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sessions := make([]*Session, 0, len(deviceIDs))
	var stale []interface{}
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				stale = append(stale, deviceIDs[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			stale = append(stale, deviceIDs[i])
			continue
		}
		sessions = append(sessions, &sess)
	}

	if len(stale) > 0 {
		// Best effort: index hygiene must not fail the read.
		_ = s.redis.SRem(ctx, s.indexKey(userID), stale...).Err()
	}
	return sessions, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, userID, deviceID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(userID, deviceID))
		pipe.SRem(ctx, s.indexKey(userID), deviceID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
