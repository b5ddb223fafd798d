// Package server exposes the gateway over HTTP (JSON API, SSE and WebSocket
// push channels, legacy routes) and gRPC (health), and fans every lifecycle
// notification out to the push channels, the journal and the event bus.
package server

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/wagate/internal/broadcast"
	"github.com/alfredjeanlab/wagate/internal/gateway"
	"github.com/alfredjeanlab/wagate/internal/journal"
	"github.com/alfredjeanlab/wagate/internal/model"
	"github.com/alfredjeanlab/wagate/internal/presence"
	"github.com/gorilla/websocket"
)

// Actions are the tenant operations the API exposes.
type Actions interface {
	Login(ctx context.Context, tenantID string, regenerate bool) (model.LoginStatus, error)
	Info(ctx context.Context, tenantID string) (*model.Profile, error)
	Logout(ctx context.Context, tenantID string) error
	SendMessage(ctx context.Context, req gateway.SendRequest) (*gateway.SendResult, error)
}

// SessionView reports session state without changing it.
type SessionView interface {
	Status(tenantID string) (model.SessionInfo, bool)
	List() []model.SessionInfo
}

// Options configure a Server. Hub and Actions are required.
type Options struct {
	Actions        Actions
	Sessions       SessionView
	Hub            *broadcast.Hub
	Journal        journal.Journal
	Presence       *presence.Tracker
	AuthToken      string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server serves the HTTP API.
type Server struct {
	actions  Actions
	sessions SessionView
	hub      *broadcast.Hub
	journal  journal.Journal
	presence *presence.Tracker
	logger   *slog.Logger

	authToken string
	origins   originPolicy
	upgrader  websocket.Upgrader
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		actions:   opts.Actions,
		sessions:  opts.Sessions,
		hub:       opts.Hub,
		journal:   opts.Journal,
		presence:  opts.Presence,
		logger:    logger,
		authToken: opts.AuthToken,
		origins:   newOriginPolicy(opts.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.origins.allowRequest,
	}
	return s
}
