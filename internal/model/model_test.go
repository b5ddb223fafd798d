package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestIsTerminal(t *testing.T) {
	for _, tc := range []struct {
		name string
		want bool
	}{
		{EventQR, false},
		{EventAuthenticated, false},
		{EventReady, false},
		{EventAuthFailure, false},
		{EventDisconnected, true},
		{EventLoggedOut, true},
		{EventError, true},
		{"", false},
	} {
		if got := IsTerminal(tc.name); got != tc.want {
			t.Errorf("IsTerminal(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSessionInfo_OmitsZeroTimes(t *testing.T) {
	data, err := json.Marshal(SessionInfo{TenantID: "42", State: StateInitializing})
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, key := range []string{`"created_at"`, `"ready_at"`, `"id"`} {
		if strings.Contains(s, key) {
			t.Errorf("%s present in %s", key, s)
		}
	}
	if !strings.Contains(s, `"state":"initializing"`) {
		t.Errorf("state missing in %s", s)
	}
}

func TestReasonPayload_EmptyReason(t *testing.T) {
	data, err := json.Marshal(ReasonPayload{})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{}" {
		t.Errorf("got %s, want {}", data)
	}
}
