package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// subscriberBuffer is how many payloads a subscription holds before it
// starts dropping.
const subscriberBuffer = 64

func connect(url, name string, opts []nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher mirrors lifecycle events onto NATS as JSON.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, "wagate-events", opts)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := &nats.Msg{Subject: topic, Header: nats.Header{}, Data: data}
	msg.Header.Set("Content-Type", "application/json")
	return p.conn.PublishMsg(msg)
}

// Flush waits until the server has processed everything published so far.
func (p *NATSPublisher) Flush() error { return p.conn.Flush() }

// Close drains pending publishes before disconnecting.
func (p *NATSPublisher) Close() error {
	if p.conn.IsClosed() || p.conn.IsDraining() {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("draining NATS connection: %w", err)
	}
	return nil
}

// NATSSubscriber follows lifecycle events published by a gateway.
type NATSSubscriber struct {
	conn    *nats.Conn
	dropped atomic.Uint64
}

// NewNATSSubscriber connects with unlimited reconnects. Extra options such
// as disconnect or reconnect handlers are appended to the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, "wagate-watch", opts)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// subscription hands NATS payloads to one channel. Once cancelled, late
// deliveries are discarded instead of sent on a closed channel.
type subscription struct {
	ch      chan []byte
	dropped *atomic.Uint64

	mu     sync.Mutex
	closed bool
	sub    *nats.Subscription
}

func (s *subscription) deliver(msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg.Data:
	default:
		s.dropped.Add(1)
	}
}

func (s *subscription) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	close(s.ch)
}

// Subscribe delivers raw payloads for topic, which may use wildcards such as
// TopicAll or TenantTopic. A full buffer drops messages rather than stall the
// NATS client. The returned cancel unsubscribes and closes the channel; it is
// safe to call more than once.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	sc := &subscription{ch: make(chan []byte, subscriberBuffer), dropped: &s.dropped}

	sub, err := s.conn.Subscribe(topic, sc.deliver)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	sc.mu.Lock()
	sc.sub = sub
	sc.mu.Unlock()

	// The subscription must be registered server-side before the caller
	// relies on it.
	if err := s.conn.Flush(); err != nil {
		sc.cancel()
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}
	return sc.ch, sc.cancel, nil
}

// Dropped counts payloads discarded because a subscriber fell behind.
func (s *NATSSubscriber) Dropped() uint64 { return s.dropped.Load() }

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
