// Package natsbridge connects the gateway to browser-automation workers over
// NATS. Each operation on a tenant's connection is a request on
// <prefix>.<tenant>.<op>; the worker streams lifecycle events for the tenant
// on <prefix>.<tenant>.events.
package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/wagate/internal/engine"
	"github.com/alfredjeanlab/wagate/internal/idgen"
	"github.com/alfredjeanlab/wagate/internal/model"
	"github.com/nats-io/nats.go"
)

// Operations a worker must answer.
const (
	OpConnect      = "connect"
	OpDestroy      = "destroy"
	OpLogout       = "logout"
	OpSend         = "send"
	OpIsRegistered = "is_registered"
	OpContact      = "contact"
	OpProfilePic   = "profile_pic"
	OpAbout        = "about"
	OpMe           = "me"
)

// Event types a worker publishes.
const (
	EventQR            = "qr"
	EventAuthenticated = "authenticated"
	EventReady         = "ready"
	EventAuthFailure   = "auth_failure"
	EventDisconnected  = "disconnected"
	// EventRuntimeExit reports that the automation runtime behind the
	// connection is gone; Alive turns false.
	EventRuntimeExit = "runtime_exit"
)

const DefaultTimeout = 30 * time.Second

// Request is the body of every operation request.
type Request struct {
	RequestID string              `json:"request_id"`
	TenantID  string              `json:"tenant_id"`
	DataDir   string              `json:"data_dir,omitempty"`
	To        engine.Address      `json:"to,omitempty"`
	Content   *engine.Content     `json:"content,omitempty"`
	Options   *engine.SendOptions `json:"options,omitempty"`
}

// Reply is a worker's answer. Error carries the engine's own message.
type Reply struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Event is a lifecycle notification from a worker.
type Event struct {
	Type    string `json:"type"`
	Payload string `json:"payload,omitempty"`
}

// RequestSubject is where op requests for tenantID are sent.
func RequestSubject(prefix, tenantID, op string) string {
	return prefix + "." + token(tenantID) + "." + op
}

// EventSubject is where a worker publishes tenantID's events.
func EventSubject(prefix, tenantID string) string {
	return prefix + "." + token(tenantID) + ".events"
}

func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Factory creates NATS-backed connections.
type Factory struct {
	nc      *nats.Conn
	owned   bool
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

var _ engine.Factory = (*Factory)(nil)

// Dial connects to NATS and returns a Factory that owns the connection.
func Dial(url, prefix string, timeout time.Duration, logger *slog.Logger, opts ...nats.Option) (*Factory, error) {
	defaults := []nats.Option{
		nats.Name("wagate-engine-bridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to engine NATS at %s: %w", url, err)
	}
	f := NewFactory(nc, prefix, timeout, logger)
	f.owned = true
	return f, nil
}

// NewFactory uses an existing NATS connection.
func NewFactory(nc *nats.Conn, prefix string, timeout time.Duration, logger *slog.Logger) *Factory {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{nc: nc, prefix: prefix, timeout: timeout, logger: logger}
}

func (f *Factory) NewConnection(tenantID, dataDir string) (engine.Connection, error) {
	if !f.nc.IsConnected() {
		return nil, errors.New("engine bus not connected")
	}
	return &conn{
		f:        f,
		tenantID: tenantID,
		dataDir:  dataDir,
		handlers: make(map[int]engine.Handler),
	}, nil
}

// Close releases the NATS connection if the Factory opened it.
func (f *Factory) Close() error {
	if f.owned {
		f.nc.Close()
	}
	return nil
}

type conn struct {
	f        *Factory
	tenantID string
	dataDir  string

	mu        sync.Mutex
	handlers  map[int]engine.Handler
	next      int
	sub       *nats.Subscription
	connected bool
	destroyed bool
	exited    bool
}

func (c *conn) Subscribe(h engine.Handler) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.handlers[id] = h
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.handlers, id)
			c.mu.Unlock()
		})
	}
}

// onEvent runs on the subscription's delivery goroutine, so events for one
// connection reach the handlers in order.
func (c *conn) onEvent(msg *nats.Msg) {
	var evt Event
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		c.f.logger.Warn("discarding malformed engine event", "tenant_id", c.tenantID, "error", err)
		return
	}

	c.mu.Lock()
	if evt.Type == EventRuntimeExit {
		c.exited = true
	}
	hs := make([]engine.Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		switch evt.Type {
		case EventQR:
			h.OnQR(evt.Payload)
		case EventAuthenticated:
			h.OnAuthenticated()
		case EventReady:
			h.OnReady()
		case EventAuthFailure:
			h.OnAuthFailure(evt.Payload)
		case EventDisconnected:
			h.OnDisconnected(evt.Payload)
		case EventRuntimeExit:
		default:
			c.f.logger.Debug("ignoring unknown engine event", "tenant_id", c.tenantID, "type", evt.Type)
		}
	}
}

func (c *conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return errors.New("connection destroyed")
	}
	if c.sub == nil {
		sub, err := c.f.nc.Subscribe(EventSubject(c.f.prefix, c.tenantID), c.onEvent)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("subscribing to engine events: %w", err)
		}
		c.sub = sub
	}
	c.mu.Unlock()

	if err := c.f.nc.FlushWithContext(ctx); err != nil {
		c.dropSubscription()
		return fmt.Errorf("flushing engine subscription: %w", err)
	}
	if err := c.call(ctx, OpConnect, Request{DataDir: c.dataDir}, nil); err != nil {
		c.dropSubscription()
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *conn) Logout(ctx context.Context) error {
	return c.call(ctx, OpLogout, Request{}, nil)
}

func (c *conn) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.connected = false
	c.mu.Unlock()

	err := c.call(ctx, OpDestroy, Request{}, nil)
	c.dropSubscription()
	if err != nil {
		// The worker may never have seen the request; leave Destroy retryable.
		c.mu.Lock()
		c.destroyed = false
		c.mu.Unlock()
	}
	return err
}

func (c *conn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.destroyed && !c.exited && c.f.nc.IsConnected()
}

func (c *conn) SendMessage(ctx context.Context, to engine.Address, content engine.Content, opts engine.SendOptions) error {
	return c.call(ctx, OpSend, Request{To: to, Content: &content, Options: &opts}, nil)
}

func (c *conn) IsRegisteredUser(ctx context.Context, addr engine.Address) (bool, error) {
	var out struct {
		Registered bool `json:"registered"`
	}
	err := c.call(ctx, OpIsRegistered, Request{To: addr}, &out)
	return out.Registered, err
}

func (c *conn) GetContactInfo(ctx context.Context, addr engine.Address) (*model.Contact, error) {
	var out *model.Contact
	if err := c.call(ctx, OpContact, Request{To: addr}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *conn) GetProfilePicURL(ctx context.Context, addr engine.Address) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.call(ctx, OpProfilePic, Request{To: addr}, &out)
	return out.URL, err
}

func (c *conn) GetAbout(ctx context.Context, addr engine.Address) (string, error) {
	var out struct {
		About string `json:"about"`
	}
	err := c.call(ctx, OpAbout, Request{To: addr}, &out)
	return out.About, err
}

func (c *conn) Me(ctx context.Context) (engine.Address, error) {
	var out struct {
		Address engine.Address `json:"address"`
	}
	if err := c.call(ctx, OpMe, Request{}, &out); err != nil {
		return "", err
	}
	if out.Address == "" {
		return "", errors.New("client is not connected")
	}
	return out.Address, nil
}

// call sends one request and decodes the result into out (if non-nil). A
// worker-side failure comes back as an error carrying the worker's message
// verbatim.
func (c *conn) call(ctx context.Context, op string, req Request, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.f.timeout)
		defer cancel()
	}
	req.RequestID = idgen.Must(idgen.PrefixRequest)
	req.TenantID = c.tenantID

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", op, err)
	}
	msg, err := c.f.nc.RequestWithContext(ctx, RequestSubject(c.f.prefix, c.tenantID, op), data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("%s: no engine worker available: %w", op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var rep Reply
	if err := json.Unmarshal(msg.Data, &rep); err != nil {
		return fmt.Errorf("decoding %s reply: %w", op, err)
	}
	if !rep.OK {
		if rep.Error == "" {
			rep.Error = op + " failed"
		}
		return errors.New(rep.Error)
	}
	if out != nil && len(rep.Result) > 0 {
		if err := json.Unmarshal(rep.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", op, err)
		}
	}
	return nil
}

func (c *conn) dropSubscription() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			c.f.logger.Debug("unsubscribing engine events", "tenant_id", c.tenantID, "error", err)
		}
	}
}
