package session

import "github.com/alfredjeanlab/wagate/internal/model"

// scheduleRetry arranges one re-initialization of tenantID after the
// reconnect delay, replacing any earlier one. Callers hold the tenant lock.
func (m *Manager) scheduleRetry(tenantID string) {
	r := &retry{}
	m.retryMu.Lock()
	if old, ok := m.retries[tenantID]; ok {
		old.timer.Stop()
	}
	m.retries[tenantID] = r
	r.timer = m.clock.AfterFunc(m.reconnectDelay, func() {
		defer m.recoverPanic("reconnect")
		m.runRetry(tenantID, r)
	})
	m.retryMu.Unlock()
	m.logger.Info("reconnect scheduled", "tenant_id", tenantID, "delay", m.reconnectDelay)
}

// cancelRetry drops tenantID's pending reconnect. Callers hold the tenant lock.
func (m *Manager) cancelRetry(tenantID string) {
	m.retryMu.Lock()
	defer m.retryMu.Unlock()
	if r, ok := m.retries[tenantID]; ok {
		r.timer.Stop()
		delete(m.retries, tenantID)
	}
}

// takeRetry removes r if it is still tenantID's pending reconnect.
func (m *Manager) takeRetry(tenantID string, r *retry) bool {
	m.retryMu.Lock()
	defer m.retryMu.Unlock()
	if m.retries[tenantID] != r {
		return false
	}
	delete(m.retries, tenantID)
	return true
}

func (m *Manager) runRetry(tenantID string, r *retry) {
	unlock := m.locks.Lock(tenantID)
	if !m.takeRetry(tenantID, r) || m.closed.Load() || m.reg.get(tenantID) != nil {
		unlock()
		return
	}
	sess, err := m.register(tenantID)
	unlock()
	if err != nil {
		m.logger.Error("reconnect failed", "tenant_id", tenantID, "error", err)
		m.notify(tenantID, "", model.EventError, model.ErrorPayload{Message: msgInitFailed})
		return
	}
	m.logger.Info("reconnecting session", "tenant_id", tenantID, "session_id", sess.ID)
	if err := m.connect(sess); err != nil {
		m.logger.Warn("reconnect did not complete", "tenant_id", tenantID, "error", err)
	}
}
