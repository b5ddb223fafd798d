// Package sync periodically exports session state and the lifecycle journal
// to external destinations.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Destination receives each export.
type Destination interface {
	// Write stores the complete JSONL export, replacing the previous one.
	Write(ctx context.Context, data []byte) error
}

// Scheduler exports on a fixed interval until stopped.
type Scheduler struct {
	source       Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	// runMu keeps a manual SyncNow from overlapping a scheduled run.
	runMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(source Source, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:       source,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start exports once immediately and then on every interval.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop cancels the loop and waits for an in-flight export to return.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.SyncNow(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sync failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncNow builds one export and writes it to every destination. A failing
// destination does not stop the others; all failures are returned joined.
func (s *Scheduler) SyncNow(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.source, &buf); err != nil {
		return fmt.Errorf("exporting: %w", err)
	}
	data := buf.Bytes()

	var errList []error
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			errList = append(errList, fmt.Errorf("destination %s: %w", destinationName(i, dest), err))
		}
	}
	s.logger.Info("sync completed",
		"destinations", len(s.destinations),
		"failed", len(errList),
		"bytes", len(data))
	return errors.Join(errList...)
}

func destinationName(i int, d Destination) string {
	if st, ok := d.(fmt.Stringer); ok {
		return st.String()
	}
	return fmt.Sprintf("#%d", i)
}
