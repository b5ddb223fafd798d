// Package gateway implements the tenant-facing actions: login, account
// info, logout and sending a message. It validates input, routes the work
// to the tenant's session and turns every failure into a classified error.
package gateway

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/wagate/internal/engine"
	"github.com/alfredjeanlab/wagate/internal/errs"
	"github.com/alfredjeanlab/wagate/internal/media"
	"github.com/alfredjeanlab/wagate/internal/model"
)

const (
	defaultUserName  = "Unknown"
	defaultUserAbout = "Not available"
)

// Sessions is the part of the session manager the gateway drives.
type Sessions interface {
	Login(ctx context.Context, tenantID string, regenerate bool) (model.LoginStatus, error)
	Acquire(tenantID string) (engine.Messenger, error)
	Logout(ctx context.Context, tenantID string) error
}

// Gateway executes tenant actions.
type Gateway struct {
	sessions Sessions
	fetcher  media.Fetcher
	logger   *slog.Logger
}

func New(sessions Sessions, fetcher media.Fetcher, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{sessions: sessions, fetcher: fetcher, logger: logger}
}

// Login starts or regenerates tenantID's session.
func (g *Gateway) Login(ctx context.Context, tenantID string, regenerate bool) (model.LoginStatus, error) {
	if err := requireTenant(tenantID); err != nil {
		return "", err
	}
	status, err := g.sessions.Login(ctx, tenantID, regenerate)
	if err != nil {
		g.logger.Error("login failed", "tenant_id", tenantID, "error", err)
		return "", err
	}
	return status, nil
}

// Info describes the account tenantID is logged in as.
func (g *Gateway) Info(ctx context.Context, tenantID string) (*model.Profile, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	conn, err := g.sessions.Acquire(tenantID)
	if err != nil {
		return nil, err
	}

	me, err := conn.Me(ctx)
	if err != nil {
		return nil, g.classify(tenantID, "info", err, "Failed to get info")
	}
	contact, err := conn.GetContactInfo(ctx, me)
	if err != nil {
		return nil, g.classify(tenantID, "info", err, "Failed to get info")
	}
	if contact == nil {
		return nil, errs.New(errs.KindInfoUnavailable, "Failed to get contact info")
	}
	pic, err := conn.GetProfilePicURL(ctx, me)
	if err != nil {
		return nil, g.classify(tenantID, "info", err, "Failed to get info")
	}
	about, err := conn.GetAbout(ctx, me)
	if err != nil {
		return nil, g.classify(tenantID, "info", err, "Failed to get info")
	}

	p := &model.Profile{
		UserNumber:    contact.Number,
		ProfilePicURL: pic,
		UserName:      contact.PushName,
		UserAbout:     about,
		IsBusiness:    contact.IsBusiness,
	}
	if p.UserNumber == "" {
		p.UserNumber = me.Number()
	}
	if p.UserName == "" {
		p.UserName = defaultUserName
	}
	if p.UserAbout == "" {
		p.UserAbout = defaultUserAbout
	}
	return p, nil
}

// Logout ends tenantID's session.
func (g *Gateway) Logout(ctx context.Context, tenantID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	return g.sessions.Logout(ctx, tenantID)
}

func requireTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return errs.New(errs.KindValidation, "tenant id is required")
	}
	return nil
}
