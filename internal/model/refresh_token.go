package model

import "time"

// RefreshToken models a row in the refresh_tokens table. Only the SHA-256
// digest of the token value is stored. ReplacedByHash points at the digest of
// the token that superseded this one during rotation, forming a linear chain
// per (user, device).
type RefreshToken struct {
	ID             string
	Token          string // raw value; set only on tokens being created, never loaded
	TokenHash      string
	UserID         string
	DeviceID       string
	DeviceName     string
	UserAgent      string
	CreatedByIP    string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	UsedAt         *time.Time
	RevokedAt      *time.Time
	RevokedByIP    string
	ReplacedByHash string
}

// IsExpired reports whether now is at or past the expiry.
func (t *RefreshToken) IsExpired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// IsRevoked reports whether the token has been revoked.
func (t *RefreshToken) IsRevoked() bool { return t.RevokedAt != nil }

// IsActive reports whether the token is neither revoked nor expired.
func (t *RefreshToken) IsActive(now time.Time) bool { return !t.IsRevoked() && !t.IsExpired(now) }

// Session is the caller-facing view of an active refresh token. It never
// exposes the token digest.
type Session struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IP         string    `json:"ip,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AsSession converts t to its caller-facing view.
func (t *RefreshToken) AsSession() Session {
	return Session{
		ID:         t.ID,
		DeviceID:   t.DeviceID,
		DeviceName: t.DeviceName,
		UserAgent:  t.UserAgent,
		IP:         t.CreatedByIP,
		CreatedAt:  t.CreatedAt,
		ExpiresAt:  t.ExpiresAt,
	}
}
