package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/wagate/internal/journal"
	"github.com/alfredjeanlab/wagate/internal/model"
)

// ExportLimit caps the number of journal events in one export.
const ExportLimit = 10_000

// Source supplies the data written by ExportJSONL.
type Source struct {
	// Sessions lists live sessions, sorted by tenant.
	Sessions func() []model.SessionInfo
	Journal  journal.Journal
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	SessionCount int       `json:"session_count"`
	EventCount   int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes a header, every live session and the most recent journal
// events (oldest first) as JSONL to w.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) error {
	var sessions []model.SessionInfo
	if src.Sessions != nil {
		sessions = src.Sessions()
	}

	var events []*model.Event
	if src.Journal != nil {
		var err error
		events, err = src.Journal.Recent(ctx, ExportLimit)
		if err != nil {
			return fmt.Errorf("list journal events: %w", err)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		SessionCount: len(sessions),
		EventCount:   len(events),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, s := range sessions {
		if err := enc.Encode(record{Type: "session", Data: s}); err != nil {
			return fmt.Errorf("encode session %s: %w", s.TenantID, err)
		}
	}

	for _, e := range events {
		if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
			return fmt.Errorf("encode event %d: %w", e.ID, err)
		}
	}

	return nil
}
