package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/alfredjeanlab/wagate/internal/errs"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When the server has an auth token, requests other than the health checks
// must present it as a Bearer token.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("POST /v1/tenants/{tenant}/login", s.handleLogin)
	mux.HandleFunc("GET /v1/tenants/{tenant}/info", s.handleInfo)
	mux.HandleFunc("POST /v1/tenants/{tenant}/logout", s.handleLogout)
	mux.HandleFunc("POST /v1/tenants/{tenant}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /v1/tenants/{tenant}/status", s.handleStatus)
	mux.HandleFunc("GET /v1/tenants/{tenant}/history", s.handleHistory)
	mux.HandleFunc("GET /v1/tenants/{tenant}/events", s.handleEventStream)
	mux.HandleFunc("GET /v1/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/health", s.handleLegacyHealth)
	mux.HandleFunc("POST /api/whatsapp/login", s.handleLegacyLogin)
	mux.HandleFunc("GET /api/whatsapp/info", s.handleLegacyInfo)
	mux.HandleFunc("POST /api/whatsapp/logout", s.handleLegacyLogout)
	mux.HandleFunc("POST /api/whatsapp/send-message", s.handleLegacySendMessage)

	var h http.Handler = mux
	h = AuthMiddleware(s.authToken, h)
	h = CORSMiddleware(s.origins, h)
	h = RecoveryMiddleware(s.logger, h)
	return h
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error string    `json:"error"`
	Kind  errs.Kind `json:"kind,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeFailure reports err with the status its kind maps to. Only the
// error's public detail reaches the client.
func writeFailure(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	writeJSON(w, statusForKind(kind), errorBody{Error: errs.DetailOf(err), Kind: kind})
}

func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation,
		errs.KindNotLoggedIn,
		errs.KindUnregisteredRecipient,
		errs.KindInvalidAttachment,
		errs.KindInvalidPhoneNumber:
		return http.StatusBadRequest
	case errs.KindAttachmentNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.KindValidation, err, "invalid JSON body")
	}
	return nil
}
