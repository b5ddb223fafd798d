// Package journal records session lifecycle events so a tenant's recent
// history can be inspected after the fact.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/alfredjeanlab/wagate/internal/model"
)

// DefaultLimit bounds List and Recent when the caller passes no limit.
const DefaultLimit = 100

// Journal is an append-only log of lifecycle events.
type Journal interface {
	// Record stores e and fills in its ID and CreatedAt.
	Record(ctx context.Context, e *model.Event) error
	// List returns up to limit of tenantID's most recent events, oldest first.
	List(ctx context.Context, tenantID string, limit int) ([]*model.Event, error)
	// Recent returns up to limit of the most recent events across tenants, oldest first.
	Recent(ctx context.Context, limit int) ([]*model.Event, error)
	Close() error
}

// Memory is a Journal that keeps the newest events in memory.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	events   []*model.Event
	nextID   int64
	now      func() time.Time
}

var _ Journal = (*Memory)(nil)

// NewMemory returns a Memory journal holding at most capacity events.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &Memory{capacity: capacity, now: time.Now}
}

func (m *Memory) Record(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now().UTC()
	}
	cp := *e
	m.events = append(m.events, &cp)
	if over := len(m.events) - m.capacity; over > 0 {
		m.events = append(m.events[:0:0], m.events[over:]...)
	}
	return nil
}

func (m *Memory) List(_ context.Context, tenantID string, limit int) ([]*model.Event, error) {
	return m.tail(limit, func(e *model.Event) bool { return e.TenantID == tenantID }), nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]*model.Event, error) {
	return m.tail(limit, func(*model.Event) bool { return true }), nil
}

func (m *Memory) tail(limit int, keep func(*model.Event) bool) []*model.Event {
	if limit <= 0 {
		limit = DefaultLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(m.events[i]) {
			cp := *m.events[i]
			out = append(out, &cp)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (m *Memory) Close() error { return nil }
