// Package client provides a transport-agnostic interface for the wagate
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alfredjeanlab/wagate/internal/model"
)

// GatewayClient is the interface the wagate CLI uses to talk to the server.
type GatewayClient interface {
	// Tenant actions
	Login(ctx context.Context, tenantID string, regenerate bool) (model.LoginStatus, error)
	Info(ctx context.Context, tenantID string) (*model.Profile, error)
	Logout(ctx context.Context, tenantID string) error
	Send(ctx context.Context, tenantID string, req *SendRequest) (*SendResponse, error)

	// Inspection
	Status(ctx context.Context, tenantID string) (*model.SessionInfo, error)
	Sessions(ctx context.Context) (*SessionsResponse, error)
	History(ctx context.Context, tenantID string, limit int) ([]*model.Event, error)

	// StreamEvents delivers the tenant's push events to fn until ctx is
	// done, the stream ends, or fn returns an error.
	StreamEvents(ctx context.Context, tenantID string, fn func(StreamEvent) error) error

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// SendRequest is an outbound message.
type SendRequest struct {
	PhoneNumber     string `json:"phone_number"`
	Text            string `json:"text"`
	AttachmentURL   string `json:"attachment_url,omitempty"`
	AttachmentLabel string `json:"attachment_label,omitempty"`
}

// SendResponse reports where a message went.
type SendResponse struct {
	Status    string `json:"status"`
	To        string `json:"to"`
	WithMedia bool   `json:"with_media"`
}

// Activity is a tenant's recent lifecycle activity.
type Activity struct {
	TenantID   string    `json:"tenant_id"`
	SessionID  string    `json:"session_id,omitempty"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	LastEvent  string    `json:"last_event"`
	EventCount int64     `json:"event_count"`
	IdleSecs   float64   `json:"idle_secs"`
	Live       bool      `json:"live"`
}

// SessionEntry is a registered session with its activity.
type SessionEntry struct {
	model.SessionInfo
	Activity *Activity `json:"activity,omitempty"`
}

// SessionsResponse is returned by Sessions.
type SessionsResponse struct {
	Sessions []SessionEntry `json:"sessions"`
	Inactive []Activity     `json:"inactive"`
}

// StreamEvent is one event read from a tenant's push stream.
type StreamEvent struct {
	ID   uint64          `json:"id"`
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}
