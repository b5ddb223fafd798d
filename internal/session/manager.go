// Package session owns the lifecycle of every tenant's protocol session:
// creation, the reaction to engine events, the automatic reconnect after a
// disconnect, logout and teardown.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/wagate/internal/clock"
	"github.com/alfredjeanlab/wagate/internal/engine"
	"github.com/alfredjeanlab/wagate/internal/errs"
	"github.com/alfredjeanlab/wagate/internal/model"
	"github.com/alfredjeanlab/wagate/internal/sessiondata"
	"github.com/google/uuid"
)

const (
	DefaultReconnectDelay = 500 * time.Millisecond
	DefaultConnectTimeout = 2 * time.Minute

	// DefaultTeardownTimeout bounds one destroy or logout call to the engine.
	DefaultTeardownTimeout = 30 * time.Second

	msgInitFailed    = "Failed to initialize client"
	msgNotLoggedIn   = "Not logged in"
	msgLogoutCleanup = "Failed to log out completely, but session has been cleared. Please restart the application."
)

// Notifier receives every lifecycle event the manager emits. Implementations
// must not block for long; they are called outside the tenant lock.
type Notifier interface {
	Notify(ctx context.Context, tenantID, sessionID, name string, payload any)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, tenantID, sessionID, name string, payload any)

func (f NotifierFunc) Notify(ctx context.Context, tenantID, sessionID, name string, payload any) {
	f(ctx, tenantID, sessionID, name, payload)
}

// Options configure a Manager. Zero values select the defaults.
type Options struct {
	Clock          clock.Clock
	ReconnectDelay time.Duration
	ConnectTimeout time.Duration
	// TeardownTimeout bounds each destroy, logout and data purge. Teardown
	// never inherits the caller's cancellation.
	TeardownTimeout time.Duration
	PurgeOnLogout   bool
	Logger          *slog.Logger
}

// Manager is the only component that creates, replaces or removes sessions.
// Work for one tenant is serialized; different tenants proceed in parallel.
type Manager struct {
	reg      *Registry
	factory  engine.Factory
	data     *sessiondata.Dir
	notifier Notifier

	clock          clock.Clock
	reconnectDelay time.Duration
	connectTimeout  time.Duration
	teardownTimeout time.Duration
	purgeOnLogout   bool
	logger          *slog.Logger

	locks *keyedMutex

	retryMu sync.Mutex
	retries map[string]*retry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// retry is a scheduled re-initialization. Its pointer doubles as the
// cancellation token: a firing retry that is no longer in the map is stale.
type retry struct {
	timer clock.Timer
}

func NewManager(reg *Registry, factory engine.Factory, data *sessiondata.Dir, notifier Notifier, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = DefaultTeardownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if notifier == nil {
		notifier = NotifierFunc(func(context.Context, string, string, string, any) {})
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		reg:             reg,
		factory:         factory,
		data:            data,
		notifier:        notifier,
		clock:           opts.Clock,
		reconnectDelay:  opts.ReconnectDelay,
		connectTimeout:  opts.ConnectTimeout,
		teardownTimeout: opts.TeardownTimeout,
		purgeOnLogout:   opts.PurgeOnLogout,
		logger:          opts.Logger,
		locks:           newKeyedMutex(),
		retries:         make(map[string]*retry),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Registry returns the store the manager maintains.
func (m *Manager) Registry() *Registry { return m.reg }

// Login starts a session for tenantID. A ready session is kept unless
// regenerate is set; a session that is still pairing is left alone so the
// tenant never has two live connections. With regenerate the existing
// session is destroyed before the new one is created.
//
// Login returns once the engine has accepted the connection; readiness is
// reported later through the notifier.
func (m *Manager) Login(ctx context.Context, tenantID string, regenerate bool) (model.LoginStatus, error) {
	if m.closed.Load() {
		return "", errs.New(errs.KindInternal, "gateway is shutting down")
	}

	unlock := m.locks.Lock(tenantID)
	if cur := m.reg.get(tenantID); cur != nil {
		if !regenerate {
			ready := m.isReady(cur)
			unlock()
			if ready {
				return model.LoginAlreadyLoggedIn, nil
			}
			return model.LoginInitializing, nil
		}
		m.detach(cur)
		m.destroyConn(ctx, cur, "regenerate")
	}
	m.cancelRetry(tenantID)

	sess, err := m.register(tenantID)
	unlock()
	if err != nil {
		m.notify(tenantID, "", model.EventError, model.ErrorPayload{Message: msgInitFailed})
		return "", errs.Wrap(errs.KindInitialization, err, msgInitFailed)
	}

	if err := m.connect(sess); err != nil {
		return "", err
	}
	return model.LoginInitializing, nil
}

// register builds a connection and stores the session before it connects,
// so that events emitted during Connect find it. Callers hold the tenant lock.
func (m *Manager) register(tenantID string) (*Session, error) {
	var dir string
	if m.data != nil {
		var err error
		if dir, err = m.data.Ensure(tenantID); err != nil {
			return nil, err
		}
	}
	conn, err := m.factory.NewConnection(tenantID, dir)
	if err != nil {
		return nil, fmt.Errorf("creating connection: %w", err)
	}
	sess := &Session{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		State:     model.StateInitializing,
		CreatedAt: m.clock.Now(),
		conn:      conn,
	}
	sess.unsubscribe = conn.Subscribe(&handler{m: m, sess: sess})
	m.reg.put(sess)
	m.logger.Info("session created", "tenant_id", tenantID, "session_id", sess.ID)
	return sess, nil
}

// connect runs outside the tenant lock. A failure removes the session if it
// is still current and releases the connection.
func (m *Manager) connect(sess *Session) error {
	ctx, cancel := context.WithTimeout(m.ctx, m.connectTimeout)
	defer cancel()

	err := sess.conn.Connect(ctx)
	if err == nil {
		return nil
	}
	m.logger.Error("session initialization failed", "tenant_id", sess.TenantID, "session_id", sess.ID, "error", err)

	unlock := m.locks.Lock(sess.TenantID)
	if m.reg.remove(sess) {
		sess.unsubscribe()
	}
	m.destroyConn(m.ctx, sess, "initialization failed")
	unlock()

	m.notify(sess.TenantID, sess.ID, model.EventError, model.ErrorPayload{Message: msgInitFailed})
	return errs.Wrap(errs.KindInitialization, err, msgInitFailed)
}

// Acquire returns the messaging capability of tenantID's ready session.
func (m *Manager) Acquire(tenantID string) (engine.Messenger, error) {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()
	s, ok := m.reg.sessions[tenantID]
	if !ok || !s.Ready {
		return nil, errs.New(errs.KindNotLoggedIn, msgNotLoggedIn)
	}
	return s.conn, nil
}

// Logout ends tenantID's ready session. The session is always removed; a
// failed protocol logout is only logged, while a failed teardown is
// reported as a cleanup error.
func (m *Manager) Logout(ctx context.Context, tenantID string) error {
	unlock := m.locks.Lock(tenantID)
	sess := m.reg.get(tenantID)
	if sess == nil || !m.isReady(sess) {
		unlock()
		return errs.New(errs.KindNotLoggedIn, msgNotLoggedIn)
	}
	m.detach(sess)
	m.cancelRetry(tenantID)

	tctx, cancel := m.teardownContext(ctx)
	defer cancel()
	if sess.conn.Alive() {
		if err := sess.conn.Logout(tctx); err != nil {
			m.logger.Warn("protocol logout failed", "tenant_id", tenantID, "session_id", sess.ID, "error", err)
		}
	}
	var cleanupErr error
	if err := sess.conn.Destroy(tctx); err != nil {
		m.logger.Error("destroying session after logout failed", "tenant_id", tenantID, "session_id", sess.ID, "error", err)
		cleanupErr = errs.Wrap(errs.KindCleanup, err, msgLogoutCleanup)
	}
	if m.purgeOnLogout && m.data != nil {
		if err := m.data.Remove(tctx, tenantID); err != nil {
			m.logger.Warn("purging session data failed", "tenant_id", tenantID, "error", err)
		}
	}
	unlock()

	m.logger.Info("session logged out", "tenant_id", tenantID, "session_id", sess.ID)
	m.notify(tenantID, sess.ID, model.EventLoggedOut, struct{}{})
	return cleanupErr
}

// Destroy removes tenantID's session and pending QR unconditionally and
// cancels any scheduled reconnect. Teardown failures are logged.
func (m *Manager) Destroy(ctx context.Context, tenantID string) {
	unlock := m.locks.Lock(tenantID)
	defer unlock()
	m.cancelRetry(tenantID)
	sess := m.reg.get(tenantID)
	if sess == nil {
		m.reg.clearQR(tenantID)
		return
	}
	m.detach(sess)
	m.destroyConn(ctx, sess, "destroy")
}

// Status reports tenantID's session, or the reinitializing state while a
// reconnect is scheduled.
func (m *Manager) Status(tenantID string) (model.SessionInfo, bool) {
	if info, ok := m.reg.Snapshot(tenantID); ok {
		return info, true
	}
	m.retryMu.Lock()
	_, pending := m.retries[tenantID]
	m.retryMu.Unlock()
	if pending {
		return model.SessionInfo{TenantID: tenantID, State: model.StateReinitializing}, true
	}
	return model.SessionInfo{}, false
}

// List returns every registered session, sorted by tenant.
func (m *Manager) List() []model.SessionInfo { return m.reg.List() }

// Shutdown cancels every scheduled reconnect and destroys every session.
func (m *Manager) Shutdown(ctx context.Context) {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.retryMu.Lock()
	for id, r := range m.retries {
		r.timer.Stop()
		delete(m.retries, id)
	}
	m.retryMu.Unlock()

	for _, id := range m.reg.tenants() {
		m.Destroy(ctx, id)
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown gave up waiting for session teardown", "error", ctx.Err())
	}
}

func (m *Manager) isReady(s *Session) bool {
	m.reg.mu.RLock()
	defer m.reg.mu.RUnlock()
	return s.Ready
}

// detach removes sess from the registry and stops its event delivery.
func (m *Manager) detach(sess *Session) {
	if m.reg.remove(sess) {
		sess.unsubscribe()
	}
}

// teardownContext detaches ctx from its caller's cancellation and bounds it
// by the teardown timeout. A client hanging up mid-request must not leave
// the engine-side connection running.
func (m *Manager) teardownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.teardownTimeout)
}

func (m *Manager) destroyConn(ctx context.Context, sess *Session, why string) {
	ctx, cancel := m.teardownContext(ctx)
	defer cancel()
	if err := sess.conn.Destroy(ctx); err != nil {
		m.logger.Warn("destroying session failed", "tenant_id", sess.TenantID, "session_id", sess.ID, "reason", why, "error", err)
	}
}

func (m *Manager) notify(tenantID, sessionID, name string, payload any) {
	m.notifier.Notify(m.ctx, tenantID, sessionID, name, payload)
}

// goSafe runs fn in a tracked goroutine that logs instead of crashing on panic.
func (m *Manager) goSafe(what string, fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.recoverPanic(what)
		fn()
	}()
}

func (m *Manager) recoverPanic(what string) {
	if r := recover(); r != nil {
		m.logger.Error("panic in session background work", "task", what, "panic", r, "stack", string(debug.Stack()))
	}
}
