package gateway

import (
	"context"
	"strings"

	"github.com/alfredjeanlab/wagate/internal/engine"
	"github.com/alfredjeanlab/wagate/internal/errs"
	"github.com/alfredjeanlab/wagate/internal/media"
)

// SendRequest is an outbound message from a tenant to a phone number.
type SendRequest struct {
	TenantID    string `json:"tenant_id"`
	PhoneNumber string `json:"phone_number"`
	Text        string `json:"text"`
	// AttachmentURL, when set, is fetched and sent as media with Text as
	// its caption.
	AttachmentURL string `json:"attachment_url,omitempty"`
	// AttachmentLabel names the file the recipient sees.
	AttachmentLabel string `json:"attachment_label,omitempty"`
}

// SendResult identifies where a message went.
type SendResult struct {
	To        engine.Address `json:"to"`
	WithMedia bool           `json:"with_media"`
}

// validate checks the message fields. It runs once the tenant's session is
// known to be ready, so a tenant without one reports not_logged_in for any
// input.
func (r *SendRequest) validate() error {
	switch {
	case strings.TrimSpace(r.PhoneNumber) == "":
		return errs.New(errs.KindValidation, "Phone number and message are required")
	case r.Text == "":
		return errs.New(errs.KindValidation, "Phone number and message are required")
	}
	return nil
}

// SendMessage delivers req through the tenant's ready session.
func (g *Gateway) SendMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := requireTenant(req.TenantID); err != nil {
		return nil, err
	}
	conn, err := g.sessions.Acquire(req.TenantID)
	if err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	digits := engine.NormalizePhone(req.PhoneNumber)
	if digits == "" {
		return nil, errs.New(errs.KindInvalidPhoneNumber, "Invalid phone number format")
	}
	to := engine.UserAddress(digits)

	registered, err := conn.IsRegisteredUser(ctx, to)
	if err != nil {
		return nil, g.classify(req.TenantID, "send", err, "Failed to send message")
	}
	if !registered {
		return nil, errs.New(errs.KindUnregisteredRecipient, "The number is not registered on WhatsApp")
	}

	content := engine.Content{Text: req.Text}
	var opts engine.SendOptions
	if req.AttachmentURL != "" {
		m, err := g.fetcher.Fetch(ctx, req.AttachmentURL)
		if err != nil {
			if media.IsNotFound(err) {
				g.logger.Info("attachment not found", "tenant_id", req.TenantID, "url", req.AttachmentURL)
			} else {
				g.logger.Warn("fetching attachment failed", "tenant_id", req.TenantID, "url", req.AttachmentURL, "error", err)
			}
			return nil, err
		}
		if req.AttachmentLabel != "" {
			m.Filename = req.AttachmentLabel
		}
		content = engine.Content{Media: m}
		opts.Caption = req.Text
	}

	if err := conn.SendMessage(ctx, to, content, opts); err != nil {
		return nil, g.classify(req.TenantID, "send", err, "Failed to send message")
	}
	g.logger.Info("message sent", "tenant_id", req.TenantID, "to", to, "media", content.Media != nil)
	return &SendResult{To: to, WithMedia: content.Media != nil}, nil
}
