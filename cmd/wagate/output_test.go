package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/wagate/internal/client"
	"github.com/alfredjeanlab/wagate/internal/model"
	"github.com/alfredjeanlab/wagate/internal/ui"
)

func init() {
	ui.ForceNoColor()
}

func TestCompactData(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"", ""},
		{"{}", ""},
		{"null", ""},
		{`{"qr":"2@abc"}`, `{"qr":"2@abc"}`},
	} {
		if got := compactData(json.RawMessage(tc.in)); got != tc.want {
			t.Errorf("compactData(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPrintSessionInfo(t *testing.T) {
	var buf bytes.Buffer
	printSessionInfo(&buf, &model.SessionInfo{
		ID:        "0b6f",
		TenantID:  "42",
		State:     model.StateAuthenticating,
		HasQR:     true,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	out := buf.String()
	for _, want := range []string{"Tenant:   42", "State:    authenticating", "Session:  0b6f", "QR pending", "Created:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Ready At") {
		t.Errorf("zero ReadyAt should be omitted:\n%s", out)
	}
}

func TestPrintSessions(t *testing.T) {
	var buf bytes.Buffer
	printSessions(&buf, &client.SessionsResponse{})
	if got := buf.String(); got != "no sessions\n" {
		t.Errorf("empty = %q", got)
	}

	buf.Reset()
	printSessions(&buf, &client.SessionsResponse{
		Sessions: []client.SessionEntry{
			{SessionInfo: model.SessionInfo{TenantID: "1", State: model.StateReady, Ready: true},
				Activity: &client.Activity{TenantID: "1", LastEvent: "ready", LastSeen: time.Now()}},
			{SessionInfo: model.SessionInfo{TenantID: "2", State: model.StateInitializing, HasQR: true}},
		},
		Inactive: []client.Activity{{TenantID: "3", LastEvent: "logged_out", LastSeen: time.Now()}},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "TENANT") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], "yes") || !strings.Contains(lines[2], " - ") {
		t.Errorf("session without activity = %q", lines[2])
	}
	if !strings.Contains(lines[3], "inactive") || !strings.Contains(lines[3], "logged_out") {
		t.Errorf("inactive row = %q", lines[3])
	}
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	if got := buf.String(); got != "no events\n" {
		t.Errorf("empty = %q", got)
	}

	buf.Reset()
	printHistory(&buf, []*model.Event{
		{ID: 7, Name: model.EventQR, Payload: json.RawMessage(`{"qr":"2@abc"}`)},
		{ID: 8, Name: model.EventReady, Payload: json.RawMessage(`{}`)},
	})
	out := buf.String()
	if !strings.Contains(out, `{"qr":"2@abc"}`) || !strings.Contains(out, "ready") {
		t.Errorf("history output:\n%s", out)
	}
	if strings.Contains(out, "{}") {
		t.Errorf("empty payload should be elided:\n%s", out)
	}
}

func TestWriteWatchEvent_JSON(t *testing.T) {
	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })

	var buf bytes.Buffer
	if err := writeWatchEvent(&buf, client.StreamEvent{ID: 3, Name: "qr", Data: json.RawMessage(`{"qr":"x"}`)}); err != nil {
		t.Fatal(err)
	}
	var got client.StreamEvent
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got.ID != 3 || got.Name != "qr" || string(got.Data) != `{"qr":"x"}` {
		t.Errorf("got %+v", got)
	}
}

func TestWriteWatchEvent_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := writeWatchEvent(&buf, client.StreamEvent{Name: "disconnected", Data: json.RawMessage(`{"reason":"NAVIGATION"}`)}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "disconnected") || !strings.Contains(out, "NAVIGATION") {
		t.Errorf("output = %q", out)
	}
}
