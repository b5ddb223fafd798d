package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alfredjeanlab/wagate/internal/broadcast"
	"github.com/alfredjeanlab/wagate/internal/events"
	"github.com/alfredjeanlab/wagate/internal/journal"
	"github.com/alfredjeanlab/wagate/internal/model"
	"github.com/alfredjeanlab/wagate/internal/presence"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServicePrefix names the per-tenant gRPC health service:
// wagate.session/<tenant>.
const HealthServicePrefix = "wagate.session/"

// HealthService returns the gRPC health service name for tenantID.
func HealthService(tenantID string) string { return HealthServicePrefix + tenantID }

// Fanout delivers each lifecycle notification to the push channels first,
// then to presence, health, the journal and the event bus. Only the hub is
// required; journal and bus failures are logged.
type Fanout struct {
	Hub       *broadcast.Hub
	Presence  *presence.Tracker
	Health    *health.Server
	Journal   journal.Journal
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Notify implements session.Notifier.
func (f *Fanout) Notify(ctx context.Context, tenantID, sessionID, name string, payload any) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	data, err := encodePayload(payload)
	if err != nil {
		logger.Warn("failed to marshal event", "tenant_id", tenantID, "event", name, "error", err)
		return
	}

	evt := f.Hub.Publish(tenantID, name, data)

	if f.Presence != nil {
		f.Presence.Record(tenantID, sessionID, name)
	}

	if f.Health != nil {
		switch {
		case name == model.EventReady:
			f.Health.SetServingStatus(HealthService(tenantID), healthpb.HealthCheckResponse_SERVING)
		case model.IsTerminal(name):
			f.Health.SetServingStatus(HealthService(tenantID), healthpb.HealthCheckResponse_NOT_SERVING)
		}
	}

	if f.Journal != nil {
		if err := f.Journal.Record(ctx, &model.Event{
			TenantID:  tenantID,
			Name:      name,
			SessionID: sessionID,
			Payload:   data,
			CreatedAt: evt.Time.UTC(),
		}); err != nil {
			logger.Warn("failed to record event", "tenant_id", tenantID, "event", name, "error", err)
		}
	}

	if f.Publisher != nil {
		if err := f.Publisher.Publish(ctx, events.Topic(tenantID, name), events.Lifecycle{
			TenantID:  tenantID,
			SessionID: sessionID,
			Event:     name,
			Data:      data,
			Time:      evt.Time,
		}); err != nil {
			logger.Warn("failed to publish event", "tenant_id", tenantID, "event", name, "error", err)
		}
	}
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return p, nil
	}
	return json.Marshal(payload)
}
