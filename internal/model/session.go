package model

import "time"

// State is the lifecycle position of a tenant's session.
type State string

const (
	StateInitializing   State = "initializing"
	StateAuthenticating State = "authenticating"
	StateReady          State = "ready"
	StateReinitializing State = "reinitializing"
)

// LoginStatus is the non-error outcome of a login request.
type LoginStatus string

const (
	LoginAlreadyLoggedIn LoginStatus = "already_logged_in"
	LoginInitializing    LoginStatus = "initializing"
)

// SessionInfo is a point-in-time view of one tenant's session.
type SessionInfo struct {
	ID        string    `json:"id,omitempty"`
	TenantID  string    `json:"tenant_id"`
	State     State     `json:"state"`
	Ready     bool      `json:"ready"`
	HasQR     bool      `json:"has_qr"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	ReadyAt   time.Time `json:"ready_at,omitzero"`
}
