package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/wagate/internal/config"
	"github.com/alfredjeanlab/wagate/internal/events"
	wasync "github.com/alfredjeanlab/wagate/internal/sync"
	natsserver "github.com/nats-io/nats-server/v2/server"
)

func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	lis.Close()
	return addr
}

// syncBuffer is a bytes.Buffer safe for one writer and one polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunServer_ServesAndShutsDown(t *testing.T) {
	natsURL := startTestNATS(t)
	addr := freeAddr(t)

	cfg := &config.Config{
		HTTPAddr:       addr,
		GRPCAddr:       config.Disabled,
		AllowedOrigins: []string{"*"},
		EngineNATSURL:  natsURL,
		EngineSubject:  "wagate.engine",
		EngineTimeout:  time.Second,
		NATSURL:        natsURL,
		SessionDir:     t.TempDir(),
		PurgeOnLogout:  true,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, cfg, logger) }()

	var body map[string]any
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/v1/health")
		if err == nil {
			err = json.NewDecoder(resp.Body).Decode(&body)
			resp.Body.Close()
			if err == nil {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if body["status"] != "ok" {
		t.Errorf("health = %v", body)
	}

	resp, err := http.Get("http://" + addr + "/v1/tenants/42/status")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status of unknown tenant = %d, want 404", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("runServer did not return after cancel")
	}
}

func TestStartSync_DisabledWithoutDestination(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if s := startSync(context.Background(), &config.Config{}, wasync.Source{}, logger); s != nil {
		t.Error("scheduler started with zero interval")
	}
	if s := startSync(context.Background(), &config.Config{SyncInterval: time.Minute}, wasync.Source{}, logger); s != nil {
		t.Error("scheduler started without a destination")
	}
}

type failingPruner struct{ calls atomic.Int32 }

func (p *failingPruner) Prune(context.Context, time.Time) (int64, error) {
	p.calls.Add(1)
	return 0, errors.New("relation does not exist")
}

func TestPruneJournal_LogsFailure(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	p := &failingPruner{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pruneJournal(ctx, p, time.Hour, logger)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(logs.String(), "journal prune failed") {
		if time.Now().After(deadline) {
			t.Fatalf("no failure logged; output %q", logs.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if !strings.Contains(logs.String(), `error="relation does not exist"`) {
		t.Errorf("failure not logged under the error key: %q", logs.String())
	}
	if p.calls.Load() != 1 {
		t.Errorf("Prune called %d times before the first tick", p.calls.Load())
	}
}

func TestWatchNATS(t *testing.T) {
	natsURL := startTestNATS(t)
	pub, err := events.NewNATSPublisher(natsURL)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- watchNATS(ctx, natsURL, "42", out) }()

	// The subscription may not be live yet; publish until the event shows up.
	msg := events.Lifecycle{TenantID: "42", Event: "ready", Data: json.RawMessage(`{"at":"now"}`), Time: time.Now()}
	other := events.Lifecycle{TenantID: "7", Event: "auth_failure", Time: time.Now()}
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "ready") {
		if time.Now().After(deadline) {
			t.Fatalf("event never delivered; output %q", out.String())
		}
		if err := pub.Publish(ctx, events.Topic("7", other.Event), other); err != nil {
			t.Fatal(err)
		}
		if err := pub.Publish(ctx, events.Topic("42", msg.Event), msg); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watchNATS: %v", err)
	}
	if strings.Contains(out.String(), "auth_failure") {
		t.Errorf("other tenant's event leaked into the watch: %q", out.String())
	}
	if !strings.Contains(out.String(), `{"at":"now"}`) {
		t.Errorf("payload missing: %q", out.String())
	}
}
