package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/alfredjeanlab/wagate/internal/errs"
	"github.com/alfredjeanlab/wagate/internal/gateway"
)

// Routes under /api keep the request and response shapes of the first
// generation of the service. Tenants are called businesses there.

// looseString accepts a JSON number or string.
type looseString string

func (b *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = looseString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected a number or string: %w", err)
	}
	*b = looseString(n.String())
	return nil
}

// handleLegacyHealth handles GET /api/health.
func (s *Server) handleLegacyHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"msg": "It works!"})
}

type legacyLoginRequest struct {
	BusinessID   looseString `json:"businessID"`
	IsGeneration bool        `json:"isGeneration"`
}

// handleLegacyLogin handles POST /api/whatsapp/login.
func (s *Server) handleLegacyLogin(w http.ResponseWriter, r *http.Request) {
	var req legacyLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if req.BusinessID == "" {
		writeFailure(w, errs.New(errs.KindValidation, "Business ID is required"))
		return
	}
	status, err := s.actions.Login(r.Context(), string(req.BusinessID), req.IsGeneration)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

// legacyProfile is the camelCase account description.
type legacyProfile struct {
	Status        string `json:"status"`
	UserNumber    string `json:"userNumber"`
	ProfilePicURL string `json:"profilePicUrl"`
	UserName      string `json:"userName"`
	UserAbout     string `json:"userAbout"`
	IsBusinessWa  bool   `json:"isBusinessWa"`
}

// handleLegacyInfo handles GET /api/whatsapp/info?businessID=.
func (s *Server) handleLegacyInfo(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("businessID"))
	if id == "" {
		writeFailure(w, errs.New(errs.KindNotLoggedIn, "Client is not logged in"))
		return
	}
	p, err := s.actions.Info(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, legacyProfile{
		Status:        "success",
		UserNumber:    p.UserNumber,
		ProfilePicURL: p.ProfilePicURL,
		UserName:      p.UserName,
		UserAbout:     p.UserAbout,
		IsBusinessWa:  p.IsBusiness,
	})
}

type legacyLogoutRequest struct {
	BusinessID looseString `json:"businessID"`
}

// handleLegacyLogout handles POST /api/whatsapp/logout.
func (s *Server) handleLegacyLogout(w http.ResponseWriter, r *http.Request) {
	var req legacyLogoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if req.BusinessID == "" {
		writeFailure(w, errs.New(errs.KindValidation, "Invalid or missing user ID"))
		return
	}
	if err := s.actions.Logout(r.Context(), string(req.BusinessID)); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Logged out successfully"})
}

type legacySendRequest struct {
	BusinessID    looseString `json:"businessID"`
	PhoneNumber   string      `json:"phone_number"`
	Message       string      `json:"message"`
	AttachmentURL string      `json:"attachmentUrl"`
	OrderNo       looseString `json:"orderNo"`
}

// handleLegacySendMessage handles POST /api/whatsapp/send-message.
func (s *Server) handleLegacySendMessage(w http.ResponseWriter, r *http.Request) {
	var req legacySendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if req.BusinessID == "" {
		writeFailure(w, errs.New(errs.KindValidation, "Invalid or missing user ID"))
		return
	}
	var label string
	if req.OrderNo != "" {
		label = "Invoice-" + string(req.OrderNo)
	}
	if _, err := s.actions.SendMessage(r.Context(), gateway.SendRequest{
		TenantID:        string(req.BusinessID),
		PhoneNumber:     req.PhoneNumber,
		Text:            req.Message,
		AttachmentURL:   req.AttachmentURL,
		AttachmentLabel: label,
	}); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Message sent successfully."})
}
