// Package enginetest provides a scriptable in-memory engine for tests.
package enginetest

import (
	"context"
	"errors"
	"sync"

	"github.com/alfredjeanlab/wagate/internal/engine"
	"github.com/alfredjeanlab/wagate/internal/model"
)

// Factory records every connection it creates.
type Factory struct {
	mu    sync.Mutex
	conns map[string][]*Conn

	// NewErr makes NewConnection fail.
	NewErr error
	// Configure runs on each new Conn before it is handed out.
	Configure func(*Conn)
}

var _ engine.Factory = (*Factory)(nil)

func NewFactory() *Factory {
	return &Factory{conns: make(map[string][]*Conn)}
}

func (f *Factory) NewConnection(tenantID, dataDir string) (engine.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewErr != nil {
		return nil, f.NewErr
	}
	c := &Conn{
		TenantID: tenantID,
		DataDir:  dataDir,
		Self:     engine.UserAddress("15550001111"),
		handlers: make(map[int]engine.Handler),
	}
	if f.Configure != nil {
		f.Configure(c)
	}
	f.conns[tenantID] = append(f.conns[tenantID], c)
	return c, nil
}

// Connections returns every connection created for tenantID, oldest first.
func (f *Factory) Connections(tenantID string) []*Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Conn(nil), f.conns[tenantID]...)
}

// Last returns the newest connection for tenantID, or nil.
func (f *Factory) Last(tenantID string) *Conn {
	conns := f.Connections(tenantID)
	if len(conns) == 0 {
		return nil
	}
	return conns[len(conns)-1]
}

// Sent is a message accepted by a Conn.
type Sent struct {
	To      engine.Address
	Content engine.Content
	Opts    engine.SendOptions
}

// Conn is a fake engine.Connection. Exported fields script its behaviour;
// change them after creation only through Set.
type Conn struct {
	TenantID string
	DataDir  string

	ConnectErr error
	// OnConnect runs inside Connect after the handlers are in place, e.g.
	// to emit a QR before Connect returns.
	OnConnect  func(c *Conn)
	LogoutErr  error
	DestroyErr error
	SendErr    error

	// Unregistered lists addresses IsRegisteredUser reports as unknown.
	Unregistered  map[engine.Address]bool
	RegisteredErr error
	Contact       *model.Contact
	ContactErr    error
	PicURL        string
	PicErr        error
	About         string
	AboutErr      error
	Self          engine.Address

	mu           sync.Mutex
	handlers     map[int]engine.Handler
	nextHandler  int
	connected    bool
	destroyed    bool
	dead         bool
	sent         []Sent
	connectCalls int
	logoutCalls  int
	destroyCalls int
}

var _ engine.Connection = (*Conn)(nil)

// Set mutates the scripted fields under the connection's lock.
func (c *Conn) Set(fn func(c *Conn)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

func (c *Conn) Subscribe(h engine.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = h
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.handlers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.connectCalls++
	err := c.ConnectErr
	hook := c.OnConnect
	if err == nil {
		c.connected = true
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(c)
	}
	return nil
}

// Logout and Destroy fail with ctx's error when it is already done, without
// reaching the engine, like a request that was never sent.
func (c *Conn) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logoutCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.LogoutErr
}

func (c *Conn) Destroy(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	c.destroyed = true
	c.connected = false
	return c.DestroyErr
}

func (c *Conn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.destroyed && !c.dead
}

// Kill makes Alive report false as if the automation runtime had crashed.
func (c *Conn) Kill() {
	c.mu.Lock()
	c.dead = true
	c.mu.Unlock()
}

func (c *Conn) SendMessage(ctx context.Context, to engine.Address, content engine.Content, opts engine.SendOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.sent = append(c.sent, Sent{To: to, Content: content, Opts: opts})
	return nil
}

func (c *Conn) IsRegisteredUser(ctx context.Context, addr engine.Address) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RegisteredErr != nil {
		return false, c.RegisteredErr
	}
	return !c.Unregistered[addr], nil
}

func (c *Conn) GetContactInfo(ctx context.Context, addr engine.Address) (*model.Contact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Contact, c.ContactErr
}

func (c *Conn) GetProfilePicURL(ctx context.Context, addr engine.Address) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PicURL, c.PicErr
}

func (c *Conn) GetAbout(ctx context.Context, addr engine.Address) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.About, c.AboutErr
}

func (c *Conn) Me(ctx context.Context) (engine.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Self == "" {
		return "", errors.New("not connected")
	}
	return c.Self, nil
}

// Sent returns the messages accepted so far.
func (c *Conn) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Calls returns how often Connect, Logout and Destroy were invoked.
func (c *Conn) Calls() (connect, logout, destroy int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectCalls, c.logoutCalls, c.destroyCalls
}

// Destroyed reports whether Destroy has been called.
func (c *Conn) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// Subscribers returns the number of registered handlers.
func (c *Conn) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func (c *Conn) snapshot() []engine.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	hs := make([]engine.Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		hs = append(hs, h)
	}
	return hs
}

func (c *Conn) EmitQR(payload string) {
	for _, h := range c.snapshot() {
		h.OnQR(payload)
	}
}

func (c *Conn) EmitAuthenticated() {
	for _, h := range c.snapshot() {
		h.OnAuthenticated()
	}
}

func (c *Conn) EmitReady() {
	for _, h := range c.snapshot() {
		h.OnReady()
	}
}

func (c *Conn) EmitAuthFailure(reason string) {
	for _, h := range c.snapshot() {
		h.OnAuthFailure(reason)
	}
}

func (c *Conn) EmitDisconnected(reason string) {
	for _, h := range c.snapshot() {
		h.OnDisconnected(reason)
	}
}
