package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestTopic(t *testing.T) {
	for _, tc := range []struct {
		tenant, event, want string
	}{
		{"7", "qr", "wagate.session.7.qr"},
		{"shop.a", "ready", "wagate.session.shop_a.ready"},
		{"a b>*", "disconnected", "wagate.session.a_b__.disconnected"},
		{"", "error", "wagate.session._.error"},
	} {
		if got := Topic(tc.tenant, tc.event); got != tc.want {
			t.Errorf("Topic(%q, %q) = %q, want %q", tc.tenant, tc.event, got, tc.want)
		}
	}
	if got := TenantTopic("7"); got != "wagate.session.7.>" {
		t.Errorf("TenantTopic = %q", got)
	}
}

func TestNoopPublisher(t *testing.T) {
	var pub Publisher = NoopPublisher{}
	if err := pub.Publish(context.Background(), Topic("7", "qr"), Lifecycle{}); err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestNATSPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TenantTopic("7"), ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := Lifecycle{TenantID: "7", Event: "qr", Data: json.RawMessage(`{"qr":"QR-A"}`), Time: time.Now()}
	if err := pub.Publish(context.Background(), Topic("7", "qr"), event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if err := pub.Flush(); err != nil {
		t.Fatalf("Flush error: %v", err)
	}

	select {
	case msg := <-ch:
		if msg.Subject != "wagate.session.7.qr" {
			t.Errorf("subject = %q", msg.Subject)
		}
		if ct := msg.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var got Lifecycle
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.TenantID != "7" || got.Event != "qr" || string(got.Data) != `{"qr":"QR-A"}` {
			t.Errorf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, Topic("7", "ready"), Lifecycle{}); err == nil {
		t.Fatal("expected error publishing with a canceled context")
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Publishing after close should fail.
	if err := pub.Publish(context.Background(), Topic("7", "ready"), Lifecycle{}); err == nil {
		t.Error("expected error publishing after close")
	}
}
