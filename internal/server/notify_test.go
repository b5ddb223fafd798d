package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/wagate/internal/broadcast"
	"github.com/alfredjeanlab/wagate/internal/events"
	"github.com/alfredjeanlab/wagate/internal/journal"
	"github.com/alfredjeanlab/wagate/internal/model"
	"github.com/alfredjeanlab/wagate/internal/presence"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	msgs   []events.Lifecycle
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.msgs = append(p.msgs, event.(events.Lifecycle))
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type failingJournal struct{ journal.Journal }

func (failingJournal) Record(context.Context, *model.Event) error { return errors.New("db down") }

func newTestFanout() (*Fanout, *recordingPublisher) {
	pub := &recordingPublisher{}
	return &Fanout{
		Hub:       broadcast.New(nil),
		Presence:  presence.New(),
		Health:    health.NewServer(),
		Journal:   journal.NewMemory(0),
		Publisher: pub,
	}, pub
}

func TestFanout_DeliversEverywhere(t *testing.T) {
	f, pub := newTestFanout()
	sub := f.Hub.Subscribe()
	f.Hub.Join(sub, "7")

	f.Notify(context.Background(), "7", "s-1", model.EventQR, model.QRPayload{QR: "QR-A"})

	select {
	case evt := <-sub.Events():
		if evt.Name != model.EventQR || string(evt.Data) != `{"qr":"QR-A"}` {
			t.Fatalf("unexpected hub event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not deliver")
	}

	if e, ok := f.Presence.Get("7"); !ok || e.LastEvent != model.EventQR || e.SessionID != "s-1" {
		t.Fatalf("presence not updated: %+v", e)
	}

	recorded, _ := f.Journal.List(context.Background(), "7", 10)
	if len(recorded) != 1 || recorded[0].SessionID != "s-1" || string(recorded[0].Payload) != `{"qr":"QR-A"}` {
		t.Fatalf("journal not updated: %+v", recorded)
	}

	if len(pub.topics) != 1 || pub.topics[0] != "wagate.session.7.qr" {
		t.Fatalf("unexpected topics: %v", pub.topics)
	}
	if pub.msgs[0].Event != model.EventQR || pub.msgs[0].TenantID != "7" {
		t.Fatalf("unexpected message: %+v", pub.msgs[0])
	}
}

func TestFanout_HealthStatus(t *testing.T) {
	f, _ := newTestFanout()
	ctx := context.Background()
	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := f.Health.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService("7")})
		if err != nil {
			t.Fatalf("health check: %v", err)
		}
		return resp.GetStatus()
	}

	f.Notify(ctx, "7", "s-1", model.EventReady, nil)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("after ready: %v", got)
	}

	f.Notify(ctx, "7", "s-1", model.EventDisconnected, model.ReasonPayload{Reason: "NAVIGATION"})
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after disconnected: %v", got)
	}
}

func TestFanout_BestEffortSinks(t *testing.T) {
	f, pub := newTestFanout()
	f.Journal = failingJournal{}
	pub.err = errors.New("nats down")
	sub := f.Hub.Subscribe()
	f.Hub.Join(sub, "7")

	f.Notify(context.Background(), "7", "", model.EventError, model.ErrorPayload{Message: "Failed to initialize client"})

	select {
	case evt := <-sub.Events():
		var p model.ErrorPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil || p.Message != "Failed to initialize client" {
			t.Fatalf("unexpected payload %s: %v", evt.Data, err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub delivery must not depend on the journal or the bus")
	}
}

func TestFanout_NilPayload(t *testing.T) {
	f := &Fanout{Hub: broadcast.New(nil)}
	sub := f.Hub.Subscribe()
	f.Hub.Join(sub, "7")

	f.Notify(context.Background(), "7", "", model.EventAuthenticated, nil)

	evt := <-sub.Events()
	if string(evt.Data) != "{}" {
		t.Fatalf("data = %s", evt.Data)
	}
}
