package model

import "time"

// AuthEventType names what happened in an auth event.
type AuthEventType string

const (
	EventRegistered     AuthEventType = "auth.registered"
	EventLoggedIn       AuthEventType = "auth.logged_in"
	EventLoginFailed    AuthEventType = "auth.login_failed"
	EventTokenRefreshed AuthEventType = "auth.token_refreshed"
	EventLoggedOut      AuthEventType = "auth.logged_out"
	EventLoggedOutAll   AuthEventType = "auth.logged_out_all"
)

// AuthEvent is published after an auth use case completes. It carries no
// credentials or token values. Reason is set only on failures and is the
// internal reason, never shown to the caller.
type AuthEvent struct {
	Type       AuthEventType `json:"type"`
	UserID     string        `json:"user_id,omitempty"`
	DeviceID   string        `json:"device_id,omitempty"`
	IP         string        `json:"ip,omitempty"`
	UserAgent  string        `json:"user_agent,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
