// Package events mirrors session lifecycle events onto NATS so that other
// services can follow tenants without holding a push connection.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// TopicPrefix roots every lifecycle subject: wagate.session.<tenant>.<event>.
const TopicPrefix = "wagate.session"

// TopicAll matches every lifecycle subject.
const TopicAll = TopicPrefix + ".>"

// Topic returns the subject for a tenant's lifecycle event.
func Topic(tenantID, name string) string {
	return TopicPrefix + "." + Token(tenantID) + "." + name
}

// TenantTopic matches every lifecycle event of one tenant.
func TenantTopic(tenantID string) string {
	return TopicPrefix + "." + Token(tenantID) + ".>"
}

// Token makes s usable as a single NATS subject token.
func Token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Lifecycle is the message published for every session lifecycle event.
type Lifecycle struct {
	TenantID  string          `json:"tenant_id"`
	SessionID string          `json:"session_id,omitempty"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Time      time.Time       `json:"time"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber follows lifecycle events from the bus.
type Subscriber interface {
	// Subscribe delivers raw payloads for topic until the returned cancel
	// function is called, which also closes the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}
