package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/wagate/internal/errs"
	"github.com/alfredjeanlab/wagate/internal/gateway"
	"github.com/alfredjeanlab/wagate/internal/journal"
	"github.com/alfredjeanlab/wagate/internal/model"
	"github.com/alfredjeanlab/wagate/internal/presence"
)

const maxHistoryLimit = 1000

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok", "subscribers": s.hub.Subscribers()}
	if s.sessions != nil {
		resp["sessions"] = len(s.sessions.List())
	}
	writeJSON(w, http.StatusOK, resp)
}

type loginRequest struct {
	Regenerate bool `json:"regenerate"`
}

// handleLogin handles POST /v1/tenants/{tenant}/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	status, err := s.actions.Login(r.Context(), r.PathValue("tenant"), req.Regenerate)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.LoginStatus{"status": status})
}

// handleInfo handles GET /v1/tenants/{tenant}/info.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	profile, err := s.actions.Info(r.Context(), r.PathValue("tenant"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleLogout handles POST /v1/tenants/{tenant}/logout.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.actions.Logout(r.Context(), r.PathValue("tenant")); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

type sendRequest struct {
	PhoneNumber     string `json:"phone_number"`
	Text            string `json:"text"`
	AttachmentURL   string `json:"attachment_url,omitempty"`
	AttachmentLabel string `json:"attachment_label,omitempty"`
}

// handleSendMessage handles POST /v1/tenants/{tenant}/messages.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	res, err := s.actions.SendMessage(r.Context(), gateway.SendRequest{
		TenantID:        r.PathValue("tenant"),
		PhoneNumber:     req.PhoneNumber,
		Text:            req.Text,
		AttachmentURL:   req.AttachmentURL,
		AttachmentLabel: req.AttachmentLabel,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"to":         res.To,
		"with_media": res.WithMedia,
	})
}

// handleStatus handles GET /v1/tenants/{tenant}/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	info, ok := s.sessions.Status(tenantID)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no session for tenant", Kind: errs.KindNotLoggedIn})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// sessionEntry joins a registered session with its recent activity.
type sessionEntry struct {
	model.SessionInfo
	Activity *presence.Entry `json:"activity,omitempty"`
}

// handleListSessions handles GET /v1/sessions.
// Tenants with activity but no registered session are listed under "inactive".
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var stale time.Duration
	if v := r.URL.Query().Get("stale_threshold_secs"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			stale = time.Duration(secs) * time.Second
		}
	}

	var infos []model.SessionInfo
	if s.sessions != nil {
		infos = s.sessions.List()
	}
	live := make(map[string]bool, len(infos))
	sessions := make([]sessionEntry, 0, len(infos))
	for _, info := range infos {
		live[info.TenantID] = true
		e := sessionEntry{SessionInfo: info}
		if s.presence != nil {
			if act, ok := s.presence.Get(info.TenantID); ok {
				e.Activity = &act
			}
		}
		sessions = append(sessions, e)
	}

	inactive := []presence.Entry{}
	if s.presence != nil {
		for _, act := range s.presence.Roster(stale) {
			if !live[act.TenantID] {
				inactive = append(inactive, act)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"inactive": inactive,
	})
}

// handleHistory handles GET /v1/tenants/{tenant}/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := journal.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeFailure(w, errs.New(errs.KindValidation, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	evts := []*model.Event{}
	if s.journal != nil {
		got, err := s.journal.List(r.Context(), r.PathValue("tenant"), limit)
		if err != nil {
			s.logger.Error("history query failed", "tenant_id", r.PathValue("tenant"), "error", err)
			writeFailure(w, err)
			return
		}
		if got != nil {
			evts = got
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}
