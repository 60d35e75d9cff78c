package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/accessguard/accessguard/cache"
	"github.com/accessguard/accessguard/config"
)

// policyTTL bounds staleness after a remote policy change.
const policyTTL = 5 * time.Minute

const policyCacheKey = "sessions:policy"

// Revoker invalidates the tokens bound to an evicted session. The manager
// only decides *that* a session's tokens must die; the blacklist decides
// how.
type Revoker interface {
	RevokeSessionTokens(ctx context.Context, sess *Session, reason string) error
}

// Manager enforces the login-admission policy and keeps session rows
// current.
type Manager struct {
	store   Store
	revoker Revoker
	source  config.Source
	cache   *cache.Cache
	logger  zerolog.Logger
	now     func() time.Time
}

// NewManager creates a session manager. revoker may be nil when token
// revocation on eviction is handled elsewhere.
func NewManager(store Store, revoker Revoker, source config.Source, c *cache.Cache, logger zerolog.Logger) *Manager {
	return &Manager{
		store:   store,
		revoker: revoker,
		source:  source,
		cache:   c,
		logger:  logger,
		now:     time.Now,
	}
}

// CurrentPolicy returns the effective admission policy, cached for
// 5 minutes. A cache failure falls back to defaults.
func (m *Manager) CurrentPolicy(ctx context.Context) Policy {
	policy, err := cache.GetOrSet(ctx, m.cache, policyCacheKey, cache.Absolute(policyTTL), func(ctx context.Context) (Policy, error) {
		return m.loadPolicy(), nil
	})
	if err != nil {
		m.logger.Warn().Err(err).Msg("session policy load failed, using defaults")
		return DefaultPolicy()
	}
	return policy
}

func (m *Manager) loadPolicy() Policy {
	def := DefaultPolicy()
	policy := Policy{
		AllowMultipleDevices: config.GetBool(m.source, "security:sessions:allow_multiple_devices", def.AllowMultipleDevices),
		MaxDevices:           config.GetInt(m.source, "security:sessions:max_devices", def.MaxDevices),
		NewDevicePolicy:      NewDevicePolicy(config.GetString(m.source, "security:sessions:new_device_policy", string(def.NewDevicePolicy))),
		AccessTokenTTL:       config.GetDuration(m.source, "security:sessions:access_token_ttl", def.AccessTokenTTL),
		RefreshTokenTTL:      config.GetDuration(m.source, "security:sessions:refresh_token_ttl", def.RefreshTokenTTL),
	}
	if !policy.NewDevicePolicy.valid() {
		policy.NewDevicePolicy = def.NewDevicePolicy
	}
	return policy
}

// CheckLoginPolicy decides whether a login for (userID, deviceID) may
// proceed. A kick_oldest decision has already evicted the displaced
// session (and revoked its tokens) by the time it returns.
func (m *Manager) CheckLoginPolicy(ctx context.Context, userID, deviceID string) (Decision, error) {
	policy := m.CurrentPolicy(ctx)

	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	deviceKnown := false
	otherDevice := false
	for _, sess := range sessions {
		if sess.DeviceID == deviceID {
			deviceKnown = true
		} else {
			otherDevice = true
		}
	}

	overLimit := false
	switch {
	case !policy.AllowMultipleDevices && otherDevice:
		overLimit = true
	case policy.MaxDevices > 0 && !deviceKnown && len(sessions) >= policy.MaxDevices:
		overLimit = true
	}
	if !overLimit {
		return Decision{Allowed: true}, nil
	}

	switch policy.NewDevicePolicy {
	case PolicyAllow:
		return Decision{Allowed: true}, nil
	case PolicyDeny:
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("login rejected: the device limit of %d active sessions has been reached", effectiveLimit(policy)),
		}, nil
	case PolicyKickOldest:
		evicted, err := m.evictOldest(ctx, sessions, deviceID)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: true, Evicted: evicted}, nil
	default:
		return Decision{Allowed: true}, nil
	}
}

func effectiveLimit(policy Policy) int {
	if !policy.AllowMultipleDevices {
		return 1
	}
	return policy.MaxDevices
}

// evictOldest removes the least-recently-active session belonging to a
// device other than the one logging in. Ties on LastActiveAt break on the
// smaller session ID for determinism.
func (m *Manager) evictOldest(ctx context.Context, sessions []*Session, incomingDeviceID string) (*Session, error) {
	var oldest *Session
	for _, sess := range sessions {
		if sess.DeviceID == incomingDeviceID {
			continue
		}
		if oldest == nil ||
			sess.LastActiveAt.Before(oldest.LastActiveAt) ||
			(sess.LastActiveAt.Equal(oldest.LastActiveAt) && sess.SessionID < oldest.SessionID) {
			oldest = sess
		}
	}
	if oldest == nil {
		return nil, nil
	}

	if m.revoker != nil {
		if err := m.revoker.RevokeSessionTokens(ctx, oldest, "session_evicted"); err != nil {
			return nil, err
		}
	}
	if err := m.store.Delete(ctx, oldest.UserID, oldest.DeviceID); err != nil {
		return nil, err
	}
	m.logger.Info().
		Str("user_id", oldest.UserID).
		Str("device_id", oldest.DeviceID).
		Str("session_id", oldest.SessionID).
		Msg("oldest session evicted")
	return oldest, nil
}

// RecordLoginSession upserts the (userID, deviceID) row. An existing row
// keeps its session ID and login time; LastActiveAt always advances.
func (m *Manager) RecordLoginSession(ctx context.Context, userID, deviceID, deviceType, ip string) (*Session, error) {
	policy := m.CurrentPolicy(ctx)
	now := m.now().UTC()

	sess, err := m.store.Find(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = &Session{
			SessionID: uuid.NewString(),
			UserID:    userID,
			DeviceID:  deviceID,
			LoginAt:   now,
		}
	}
	sess.DeviceType = deviceType
	sess.IP = ip
	sess.LastActiveAt = now

	if err := m.store.Save(ctx, sess, policy.RefreshTokenTTL); err != nil {
		return nil, err
	}
	return sess, nil
}

// TouchSession advances LastActiveAt for an existing row so kick_oldest
// eviction order reflects real activity. Touching an absent row is a
// no-op.
func (m *Manager) TouchSession(ctx context.Context, userID, deviceID string) error {
	sess, err := m.store.Find(ctx, userID, deviceID)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	sess.LastActiveAt = m.now().UTC()
	return m.store.Save(ctx, sess, m.CurrentPolicy(ctx).RefreshTokenTTL)
}

// EndSession removes the (userID, deviceID) row and revokes its tokens.
func (m *Manager) EndSession(ctx context.Context, userID, deviceID string) error {
	sess, err := m.store.Find(ctx, userID, deviceID)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	if m.revoker != nil {
		if err := m.revoker.RevokeSessionTokens(ctx, sess, "logout"); err != nil {
			return err
		}
	}
	return m.store.Delete(ctx, userID, deviceID)
}

// GetUserSessions returns all live sessions for userID, marking the row
// matching currentSessionID as the caller's own.
func (m *Manager) GetUserSessions(ctx context.Context, userID, currentSessionID string) ([]Info, error) {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, Info{
			Session:   *sess,
			IsCurrent: sess.SessionID == currentSessionID,
		})
	}
	return infos, nil
}
