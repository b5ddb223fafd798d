// Package presence tracks per-tenant session activity for the sessions roster.
//
// The server records every lifecycle notification here. A background reaper
// evicts tenants whose last event left them without a live session once they
// have been quiet for longer than the configured threshold.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/wagate/internal/model"
)

// Entry is a single tenant's activity snapshot.
type Entry struct {
	TenantID   string    `json:"tenant_id"`
	SessionID  string    `json:"session_id,omitempty"` // session that emitted the last event
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	LastEvent  string    `json:"last_event"`
	EventCount int64     `json:"event_count"`
	IdleSecs   float64   `json:"idle_secs"`
	Live       bool      `json:"live"` // false after disconnected, logged_out or error
}

// ReaperConfig configures the background eviction of idle tenants.
type ReaperConfig struct {
	// EvictAfter is how long a tenant whose last event was terminal stays in
	// the roster. Default: 30 minutes.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans. Default: 60 seconds.
	SweepInterval time.Duration

	// OnEvict is called outside the lock for each evicted tenant.
	OnEvict func(tenantID string)
}

// Tracker maintains an in-memory roster of tenant activity.
type Tracker struct {
	mu      sync.RWMutex
	tenants map[string]*tenantState
	now     func() time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type tenantState struct {
	firstSeen  time.Time
	lastSeen   time.Time
	lastEvent  string
	sessionID  string
	eventCount int64
}

// New creates a new presence tracker.
func New() *Tracker {
	return &Tracker{
		tenants: make(map[string]*tenantState),
		now:     time.Now,
	}
}

// Record notes that tenantID emitted event from session sessionID.
func (t *Tracker) Record(tenantID, sessionID, event string) {
	if tenantID == "" {
		return
	}

	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.tenants[tenantID]
	if !ok {
		state = &tenantState{firstSeen: now}
		t.tenants[tenantID] = state
	}
	state.lastSeen = now
	state.lastEvent = event
	state.eventCount++
	if sessionID != "" {
		state.sessionID = sessionID
	}
}

// Get returns the activity entry for tenantID.
func (t *Tracker) Get(tenantID string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.tenants[tenantID]
	if !ok {
		return Entry{}, false
	}
	return state.entry(tenantID, t.now()), true
}

// Roster returns all tracked tenants, most recently active first.
// Tenants idle longer than staleThreshold are excluded; 0 includes all.
func (t *Tracker) Roster(staleThreshold time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	entries := make([]Entry, 0, len(t.tenants))
	for tenantID, state := range t.tenants {
		if staleThreshold > 0 && now.Sub(state.lastSeen) > staleThreshold {
			continue
		}
		entries = append(entries, state.entry(tenantID, now))
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastSeen.Equal(entries[j].LastSeen) {
			return entries[i].TenantID < entries[j].TenantID
		}
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

func (s *tenantState) entry(tenantID string, now time.Time) Entry {
	return Entry{
		TenantID:   tenantID,
		SessionID:  s.sessionID,
		FirstSeen:  s.firstSeen,
		LastSeen:   s.lastSeen,
		LastEvent:  s.lastEvent,
		EventCount: s.eventCount,
		IdleSecs:   now.Sub(s.lastSeen).Seconds(),
		Live:       !model.IsTerminal(s.lastEvent),
	}
}

// StartReaper launches a background goroutine that periodically evicts idle
// tenants. Call Stop to shut it down.
func (t *Tracker) StartReaper(cfg ReaperConfig) {
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = 30 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"evict_after", cfg.EvictAfter,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg ReaperConfig) {
	now := t.now()
	var evicted []string

	t.mu.Lock()
	for tenantID, state := range t.tenants {
		if model.IsTerminal(state.lastEvent) && now.Sub(state.lastSeen) > cfg.EvictAfter {
			delete(t.tenants, tenantID)
			evicted = append(evicted, tenantID)
		}
	}
	t.mu.Unlock()

	for _, tenantID := range evicted {
		slog.Info("presence: evicted idle tenant", "tenant_id", tenantID, "threshold", cfg.EvictAfter)
		if cfg.OnEvict != nil {
			cfg.OnEvict(tenantID)
		}
	}
}
