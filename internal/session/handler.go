package session

import "github.com/alfredjeanlab/wagate/internal/model"

// handler binds engine notifications to one Session. Once that session is
// no longer current for its tenant, every notification is ignored.
type handler struct {
	m    *Manager
	sess *Session
}

func (h *handler) OnQR(payload string) {
	m, s := h.m, h.sess
	unlock := m.locks.Lock(s.TenantID)
	ok := m.reg.update(s, func(s *Session) {
		if !s.Ready {
			s.State = model.StateAuthenticating
		}
	})
	if ok {
		m.reg.setQR(s.TenantID, payload)
	}
	unlock()
	if !ok {
		return
	}
	m.logger.Debug("pairing code received", "tenant_id", s.TenantID, "session_id", s.ID)
	m.notify(s.TenantID, s.ID, model.EventQR, model.QRPayload{QR: payload})
}

func (h *handler) OnAuthenticated() {
	m, s := h.m, h.sess
	unlock := m.locks.Lock(s.TenantID)
	ok := m.reg.update(s, func(s *Session) {
		if !s.Ready {
			s.State = model.StateAuthenticating
		}
	})
	unlock()
	if !ok {
		return
	}
	m.logger.Info("session authenticated", "tenant_id", s.TenantID, "session_id", s.ID)
	m.notify(s.TenantID, s.ID, model.EventAuthenticated, struct{}{})
}

func (h *handler) OnReady() {
	m, s := h.m, h.sess
	unlock := m.locks.Lock(s.TenantID)
	now := m.clock.Now()
	ok := m.reg.update(s, func(s *Session) {
		s.Ready = true
		s.State = model.StateReady
		s.ReadyAt = now
	})
	if ok {
		m.reg.clearQR(s.TenantID)
	}
	unlock()
	if !ok {
		return
	}
	m.logger.Info("session ready", "tenant_id", s.TenantID, "session_id", s.ID)
	m.notify(s.TenantID, s.ID, model.EventReady, struct{}{})
}

func (h *handler) OnAuthFailure(reason string) {
	m, s := h.m, h.sess
	if m.reg.get(s.TenantID) != s {
		return
	}
	m.logger.Warn("session authentication failed", "tenant_id", s.TenantID, "session_id", s.ID, "reason", reason)
	m.notify(s.TenantID, s.ID, model.EventAuthFailure, model.ReasonPayload{Reason: reason})
}

// OnDisconnected hands teardown to a goroutine: it destroys the connection,
// which must not happen on the connection's own event path.
func (h *handler) OnDisconnected(reason string) {
	m, s := h.m, h.sess
	if m.reg.get(s.TenantID) != s {
		return
	}
	m.goSafe("disconnect", func() { m.handleDisconnect(s, reason) })
}

func (m *Manager) handleDisconnect(sess *Session, reason string) {
	tenantID := sess.TenantID

	unlock := m.locks.Lock(tenantID)
	current := m.reg.remove(sess)
	if current {
		sess.unsubscribe()
	}
	unlock()
	if !current {
		return
	}

	m.logger.Warn("session disconnected", "tenant_id", tenantID, "session_id", sess.ID, "reason", reason)
	m.notify(tenantID, sess.ID, model.EventDisconnected, model.ReasonPayload{Reason: reason})

	unlock = m.locks.Lock(tenantID)
	defer unlock()
	m.destroyConn(m.ctx, sess, "disconnected")
	if m.closed.Load() || m.reg.get(tenantID) != nil {
		return
	}
	m.scheduleRetry(tenantID)
}
