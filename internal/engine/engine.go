// Package engine defines the capability the gateway needs from the
// browser-automation messaging engine that actually holds a tenant's
// protocol connection. Implementations live in subpackages.
package engine

import (
	"context"
	"strings"

	"github.com/alfredjeanlab/wagate/internal/model"
)

// Address identifies a chat on the protocol, e.g. "628123456789@c.us".
type Address string

// userSuffix is the address suffix for individual (non-group) chats.
const userSuffix = "@c.us"

// NormalizePhone strips every non-digit character from raw.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UserAddress builds the chat address for a normalized phone number.
func UserAddress(digits string) Address {
	return Address(digits + userSuffix)
}

// Number returns the user part of the address.
func (a Address) Number() string {
	s := string(a)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		return s[:i]
	}
	return s
}

// Content is the body of an outbound message: text, or media with an
// optional caption.
type Content struct {
	Text  string       `json:"text,omitempty"`
	Media *model.Media `json:"media,omitempty"`
}

// SendOptions tune an outbound message.
type SendOptions struct {
	Caption string `json:"caption,omitempty"`
}

// Handler receives the lifecycle notifications of one Connection. Calls for
// a single Connection are delivered sequentially.
type Handler interface {
	OnQR(payload string)
	OnAuthenticated()
	OnReady()
	OnAuthFailure(reason string)
	OnDisconnected(reason string)
}

// Messenger is the non-destructive part of a Connection handed to the
// action gateway. It cannot tear the session down.
type Messenger interface {
	SendMessage(ctx context.Context, to Address, content Content, opts SendOptions) error
	IsRegisteredUser(ctx context.Context, addr Address) (bool, error)
	// GetContactInfo returns nil when the engine has no record of addr.
	GetContactInfo(ctx context.Context, addr Address) (*model.Contact, error)
	GetProfilePicURL(ctx context.Context, addr Address) (string, error)
	GetAbout(ctx context.Context, addr Address) (string, error)
	// Me returns the address the session is logged in as.
	Me(ctx context.Context) (Address, error)
}

// Connection is one live protocol session for a tenant.
type Connection interface {
	Messenger

	// Subscribe registers h for lifecycle notifications. The returned
	// function deregisters it; after it returns h receives no more calls.
	Subscribe(h Handler) (unsubscribe func())

	// Connect starts the session. It returns once the engine has accepted
	// the session, not when it becomes ready.
	Connect(ctx context.Context) error
	// Logout ends the session at the protocol level.
	Logout(ctx context.Context) error
	// Destroy releases the connection's resources. Safe to call more than once.
	Destroy(ctx context.Context) error
	// Alive reports whether the underlying runtime is still usable.
	Alive() bool
}

// Factory creates connections. dataDir is the tenant's persisted
// session-data location.
type Factory interface {
	NewConnection(tenantID, dataDir string) (Connection, error)
}
