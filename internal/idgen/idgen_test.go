package idgen

import (
	"regexp"
	"testing"
)

func TestNew_PrefixAndLength(t *testing.T) {
	for _, prefix := range []string{PrefixSubscriber, PrefixRequest, ""} {
		id, err := New(prefix)
		if err != nil {
			t.Fatalf("New(%q) error: %v", prefix, err)
		}
		if id[:len(prefix)] != prefix {
			t.Errorf("New(%q) = %q, want prefix %q", prefix, id, prefix)
		}
		if wantLen := len(prefix) + Length; len(id) != wantLen {
			t.Errorf("New(%q) length = %d, want %d (id=%q)", prefix, len(id), wantLen, id)
		}
	}
}

func TestNew_Charset(t *testing.T) {
	pattern := regexp.MustCompile(`^sub-[a-zA-Z0-9]+$`)
	for i := 0; i < 100; i++ {
		id := Must(PrefixSubscriber)
		if !pattern.MatchString(id) {
			t.Fatalf("Must() = %q, does not match expected charset pattern", id)
		}
	}
}

func TestNew_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id := Must(PrefixRequest)
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
