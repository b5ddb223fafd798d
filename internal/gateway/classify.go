package gateway

import (
	"errors"
	"strings"

	"github.com/alfredjeanlab/wagate/internal/errs"
)

// classify turns an engine failure into a caller-facing error. The engine
// only reports some conditions in its message text.
func (g *Gateway) classify(tenantID, action string, err error, fallback string) error {
	var typed *errs.Error
	if errors.As(err, &typed) {
		return err
	}
	g.logger.Error(action+" failed", "tenant_id", tenantID, "error", err)

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid wid"):
		return errs.Wrap(errs.KindInvalidPhoneNumber, err, "Invalid phone number format")
	case strings.Contains(msg, "not connected"):
		return errs.Wrap(errs.KindNotConnected, err, "WhatsApp client is not connected. Please try again later.")
	}
	return errs.Wrap(errs.KindInternal, err, fallback)
}
