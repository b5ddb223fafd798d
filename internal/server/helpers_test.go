package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alfredjeanlab/wagate/internal/broadcast"
	"github.com/alfredjeanlab/wagate/internal/engine"
	"github.com/alfredjeanlab/wagate/internal/gateway"
	"github.com/alfredjeanlab/wagate/internal/journal"
	"github.com/alfredjeanlab/wagate/internal/model"
	"github.com/alfredjeanlab/wagate/internal/presence"
)

// fakeActions records calls and returns scripted results.
type fakeActions struct {
	mu sync.Mutex

	loginStatus model.LoginStatus
	loginErr    error
	profile     *model.Profile
	infoErr     error
	logoutErr   error
	sendErr     error

	logins  []loginCall
	logouts []string
	sends   []gateway.SendRequest
}

type loginCall struct {
	tenantID   string
	regenerate bool
}

func (f *fakeActions) Login(_ context.Context, tenantID string, regenerate bool) (model.LoginStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, loginCall{tenantID, regenerate})
	if f.loginErr != nil {
		return "", f.loginErr
	}
	if f.loginStatus == "" {
		return model.LoginInitializing, nil
	}
	return f.loginStatus, nil
}

func (f *fakeActions) Info(_ context.Context, _ string) (*model.Profile, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.profile, nil
}

func (f *fakeActions) Logout(_ context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, tenantID)
	return f.logoutErr
}

func (f *fakeActions) SendMessage(_ context.Context, req gateway.SendRequest) (*gateway.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &gateway.SendResult{To: engine.UserAddress(engine.NormalizePhone(req.PhoneNumber)), WithMedia: req.AttachmentURL != ""}, nil
}

// fakeSessions is a static SessionView.
type fakeSessions map[string]model.SessionInfo

func (f fakeSessions) Status(tenantID string) (model.SessionInfo, bool) {
	info, ok := f[tenantID]
	return info, ok
}

func (f fakeSessions) List() []model.SessionInfo {
	out := make([]model.SessionInfo, 0, len(f))
	for _, info := range f {
		out = append(out, info)
	}
	return out
}

// fakePairing serves a fixed QR for tenants in the map.
type fakePairing map[string]string

func (f fakePairing) PendingPairing(tenantID string) (string, bool) {
	qr, ok := f[tenantID]
	return qr, ok
}

type testEnv struct {
	srv      *Server
	actions  *fakeActions
	sessions fakeSessions
	hub      *broadcast.Hub
	journal  *journal.Memory
	presence *presence.Tracker
	handler  http.Handler
}

func newTestEnv(t *testing.T, opts ...func(*Options)) *testEnv {
	t.Helper()
	env := &testEnv{
		actions:  &fakeActions{},
		sessions: fakeSessions{},
		hub:      broadcast.New(fakePairing{"pairing": "QR-PENDING"}),
		journal:  journal.NewMemory(0),
		presence: presence.New(),
	}
	o := Options{
		Actions:        env.actions,
		Sessions:       env.sessions,
		Hub:            env.hub,
		Journal:        env.journal,
		Presence:       env.presence,
		AllowedOrigins: []string{"http://localhost:5173"},
	}
	for _, fn := range opts {
		fn(&o)
	}
	env.srv = New(o)
	env.handler = env.srv.NewHTTPHandler()
	return env
}

// do sends a request to the test handler and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// decodeBody decodes the response body into a generic map.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return m
}

// requireStatus asserts the response status code.
func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d; body: %s", want, rec.Code, rec.Body.String())
	}
}
