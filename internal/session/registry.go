package session

import (
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/wagate/internal/engine"
	"github.com/alfredjeanlab/wagate/internal/model"
)

// Session is one tenant's live connection and what the gateway knows
// about it. Fields are guarded by the owning Registry's lock.
type Session struct {
	ID        string
	TenantID  string
	State     model.State
	Ready     bool
	CreatedAt time.Time
	ReadyAt   time.Time

	conn        engine.Connection
	unsubscribe func()
}

func (s *Session) info(hasQR bool) model.SessionInfo {
	return model.SessionInfo{
		ID:        s.ID,
		TenantID:  s.TenantID,
		State:     s.State,
		Ready:     s.Ready,
		HasQR:     hasQR,
		CreatedAt: s.CreatedAt,
		ReadyAt:   s.ReadyAt,
	}
}

// Registry holds the Session Store and the QR Cache. Only the Manager
// mutates it; readers such as the broadcaster and the HTTP API use the
// exported accessors.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	qr       map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		qr:       make(map[string]string),
	}
}

// Snapshot returns a copy of tenantID's session, if any.
func (r *Registry) Snapshot(tenantID string) (model.SessionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[tenantID]
	if !ok {
		return model.SessionInfo{}, false
	}
	_, hasQR := r.qr[tenantID]
	return s.info(hasQR), true
}

// List returns every session ordered by tenant id.
func (r *Registry) List() []model.SessionInfo {
	r.mu.RLock()
	out := make([]model.SessionInfo, 0, len(r.sessions))
	for id, s := range r.sessions {
		_, hasQR := r.qr[id]
		out = append(out, s.info(hasQR))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out
}

// Len returns the number of stored sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// PendingPairing returns the QR payload a newly joined subscriber should
// see: only while the tenant has a session that is not ready yet.
func (r *Registry) PendingPairing(tenantID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[tenantID]
	if !ok || s.Ready {
		return "", false
	}
	qr, ok := r.qr[tenantID]
	return qr, ok
}

func (r *Registry) get(tenantID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[tenantID]
}

func (r *Registry) put(s *Session) {
	r.mu.Lock()
	r.sessions[s.TenantID] = s
	r.mu.Unlock()
}

// remove deletes s and the tenant's QR entry, but only while s is still the
// tenant's current session.
func (r *Registry) remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.TenantID] != s {
		return false
	}
	delete(r.sessions, s.TenantID)
	delete(r.qr, s.TenantID)
	return true
}

// update applies fn to s if s is still current.
func (r *Registry) update(s *Session, fn func(*Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.TenantID] != s {
		return false
	}
	fn(s)
	return true
}

func (r *Registry) setQR(tenantID, payload string) {
	r.mu.Lock()
	r.qr[tenantID] = payload
	r.mu.Unlock()
}

func (r *Registry) clearQR(tenantID string) {
	r.mu.Lock()
	delete(r.qr, tenantID)
	r.mu.Unlock()
}

func (r *Registry) tenants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
