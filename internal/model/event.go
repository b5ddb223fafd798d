package model

import (
	"encoding/json"
	"time"
)

// Lifecycle event names delivered to a tenant's subscribers.
const (
	EventQR            = "qr"
	EventAuthenticated = "authenticated"
	EventReady         = "ready"
	EventAuthFailure   = "auth_failure"
	EventDisconnected  = "disconnected"
	EventError         = "error"
	EventLoggedOut     = "logged_out"
)

// IsTerminal reports whether name leaves the tenant without a live session.
func IsTerminal(name string) bool {
	switch name {
	case EventDisconnected, EventLoggedOut, EventError:
		return true
	}
	return false
}

// Event is a recorded lifecycle event, mirroring what is pushed to subscribers.
type Event struct {
	ID        int64           `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Name      string          `json:"name"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// QRPayload carries a pairing code for the tenant to scan.
type QRPayload struct {
	QR string `json:"qr"`
}

// ReasonPayload accompanies auth_failure and disconnected.
type ReasonPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ErrorPayload accompanies error.
type ErrorPayload struct {
	Message string `json:"message"`
}
