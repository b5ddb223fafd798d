// Package broadcast fans lifecycle events out to the subscribers that
// joined a tenant's room. Delivery never blocks the publisher: a subscriber
// whose buffer is full misses the event.
package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/wagate/internal/idgen"
	"github.com/alfredjeanlab/wagate/internal/model"
)

const (
	// ringSize is the number of recent events kept for Last-Event-ID replay.
	ringSize = 1000

	subscriberBuffer = 64
)

// Event is one delivery to a room.
type Event struct {
	ID       uint64          `json:"id"`
	TenantID string          `json:"tenant_id"`
	Name     string          `json:"event"`
	Data     json.RawMessage `json:"data"`
	Time     time.Time       `json:"time"`
}

// PairingSource supplies the QR a subscriber should see on joining a room.
type PairingSource interface {
	PendingPairing(tenantID string) (string, bool)
}

// Subscriber is one push-channel consumer. It is in at most one room.
type Subscriber struct {
	ID string

	ch     chan *Event
	tenant string
	closed bool
}

// Events delivers the subscriber's events. It is closed by Unsubscribe.
func (s *Subscriber) Events() <-chan *Event { return s.ch }

// Hub routes events to rooms keyed by tenant id.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscriber]struct{}
	rooms   map[string]map[*Subscriber]struct{}
	pairing PairingSource
	nextID  atomic.Uint64
	dropped atomic.Uint64

	ringMu  sync.RWMutex
	ring    [ringSize]*Event
	ringPos int
	ringLen int
}

// New returns a Hub. pairing may be nil, which disables QR catch-up.
func New(pairing PairingSource) *Hub {
	return &Hub{
		subs:    make(map[*Subscriber]struct{}),
		rooms:   make(map[string]map[*Subscriber]struct{}),
		pairing: pairing,
	}
}

// Subscribe registers a subscriber that is not in any room yet.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		ID: idgen.Must(idgen.PrefixSubscriber),
		ch: make(chan *Event, subscriberBuffer),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Join moves s into tenantID's room. If the tenant is still pairing, the
// current QR is delivered to s alone.
func (h *Hub) Join(s *Subscriber, tenantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	h.leaveLocked(s)
	room, ok := h.rooms[tenantID]
	if !ok {
		room = make(map[*Subscriber]struct{})
		h.rooms[tenantID] = room
	}
	room[s] = struct{}{}
	s.tenant = tenantID

	if h.pairing == nil {
		return
	}
	if qr, ok := h.pairing.PendingPairing(tenantID); ok {
		data, _ := json.Marshal(model.QRPayload{QR: qr})
		h.deliver(s, &Event{
			ID:       h.nextID.Add(1),
			TenantID: tenantID,
			Name:     model.EventQR,
			Data:     data,
			Time:     time.Now(),
		})
	}
}

// Leave takes s out of its room, if any.
func (h *Hub) Leave(s *Subscriber) {
	h.mu.Lock()
	h.leaveLocked(s)
	h.mu.Unlock()
}

// Unsubscribe removes s and closes its event channel.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	h.leaveLocked(s)
	delete(h.subs, s)
	s.closed = true
	close(s.ch)
}

func (h *Hub) leaveLocked(s *Subscriber) {
	if s.tenant == "" {
		return
	}
	if room, ok := h.rooms[s.tenant]; ok {
		delete(room, s)
		if len(room) == 0 {
			delete(h.rooms, s.tenant)
		}
	}
	s.tenant = ""
}

// Publish delivers an event to every subscriber in tenantID's room.
func (h *Hub) Publish(tenantID, name string, data []byte) *Event {
	evt := &Event{
		ID:       h.nextID.Add(1),
		TenantID: tenantID,
		Name:     name,
		Data:     data,
		Time:     time.Now(),
	}

	h.ringMu.Lock()
	h.ring[h.ringPos] = evt
	h.ringPos = (h.ringPos + 1) % ringSize
	if h.ringLen < ringSize {
		h.ringLen++
	}
	h.ringMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[tenantID] {
		h.deliver(s, evt)
	}
	return evt
}

// PublishJSON encodes payload and publishes it.
func (h *Hub) PublishJSON(tenantID, name string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", name, err)
	}
	return h.Publish(tenantID, name, data), nil
}

func (h *Hub) deliver(s *Subscriber, evt *Event) {
	select {
	case s.ch <- evt:
	default:
		h.dropped.Add(1)
	}
}

// EventsSince returns tenantID's buffered events with ID > lastID, oldest first.
func (h *Hub) EventsSince(tenantID string, lastID uint64) []*Event {
	h.ringMu.RLock()
	defer h.ringMu.RUnlock()

	var out []*Event
	start := h.ringPos - h.ringLen
	if start < 0 {
		start += ringSize
	}
	for i := range h.ringLen {
		evt := h.ring[(start+i)%ringSize]
		if evt.ID > lastID && evt.TenantID == tenantID {
			out = append(out, evt)
		}
	}
	return out
}

// RoomSize returns the number of subscribers in tenantID's room.
func (h *Hub) RoomSize(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[tenantID])
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// was not keeping up.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
