// Package session keeps multi-device session bookkeeping and decides
// whether a new login is admitted. One live session exists per
// (userID, deviceID); the admission policy decides what happens when a
// login arrives from a device that would exceed the configured limits.
package session

import "time"

// Session is one live login row for a (userID, deviceID) pair.
type Session struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	DeviceID     string    `json:"device_id"`
	DeviceType   string    `json:"device_type"`
	IP           string    `json:"ip"`
	LoginAt      time.Time `json:"login_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Info is a session as reported to the user, with the caller's own session
// marked.
type Info struct {
	Session
	IsCurrent bool `json:"is_current"`
}

// NewDevicePolicy decides how a login from a device over the limit is
// handled.
type NewDevicePolicy string

const (
	// PolicyAllow admits the login with no side effect.
	PolicyAllow NewDevicePolicy = "allow"
	// PolicyDeny rejects the login attempt.
	PolicyDeny NewDevicePolicy = "deny"
	// PolicyKickOldest evicts the least-recently-active session, revokes
	// its tokens, then admits the login.
	PolicyKickOldest NewDevicePolicy = "kick_oldest"
)

func (p NewDevicePolicy) valid() bool {
	switch p {
	case PolicyAllow, PolicyDeny, PolicyKickOldest:
		return true
	}
	return false
}

// Policy is a point-in-time snapshot of the login-admission settings.
type Policy struct {
	AllowMultipleDevices bool            `json:"allow_multiple_devices"`
	MaxDevices           int             `json:"max_devices"`
	NewDevicePolicy      NewDevicePolicy `json:"new_device_policy"`
	AccessTokenTTL       time.Duration   `json:"access_token_ttl"`
	RefreshTokenTTL      time.Duration   `json:"refresh_token_ttl"`
}

// DefaultPolicy returns the admission behavior applied when configuration
// is absent.
func DefaultPolicy() Policy {
	return Policy{
		AllowMultipleDevices: true,
		MaxDevices:           5,
		NewDevicePolicy:      PolicyKickOldest,
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      7 * 24 * time.Hour,
	}
}

// Decision is the outcome of a login-admission check.
type Decision struct {
	Allowed bool
	// Reason explains a rejection; empty when allowed.
	Reason string
	// Evicted is the session removed by kick_oldest, nil otherwise.
	Evicted *Session
}
