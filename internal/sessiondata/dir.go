// Package sessiondata manages the per-tenant directories where the engine
// persists its opaque login state between restarts.
package sessiondata

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultRemoveAttempts = 5
	defaultRemoveDelay    = time.Second
)

// Dir roots the session-data directories of all tenants.
type Dir struct {
	root     string
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// New returns a Dir rooted at root. The root is created lazily.
func New(root string, logger *slog.Logger) *Dir {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dir{
		root:     root,
		attempts: defaultRemoveAttempts,
		delay:    defaultRemoveDelay,
		logger:   logger,
	}
}

// WithRetry overrides how often and how far apart Remove retries.
func (d *Dir) WithRetry(attempts int, delay time.Duration) *Dir {
	if attempts < 1 {
		attempts = 1
	}
	d.attempts = attempts
	d.delay = delay
	return d
}

// Root returns the directory all tenant directories live under.
func (d *Dir) Root() string { return d.root }

// Path returns tenantID's directory without touching the filesystem.
func (d *Dir) Path(tenantID string) string {
	return filepath.Join(d.root, "session-"+safeName(tenantID))
}

// Ensure creates tenantID's directory if needed and returns its path.
func (d *Dir) Ensure(tenantID string) (string, error) {
	p := d.Path(tenantID)
	if err := os.MkdirAll(p, 0o700); err != nil {
		return "", fmt.Errorf("creating session dir for %s: %w", tenantID, err)
	}
	return p, nil
}

// Exists reports whether tenantID has persisted session data.
func (d *Dir) Exists(tenantID string) bool {
	_, err := os.Stat(d.Path(tenantID))
	return err == nil
}

// Remove deletes tenantID's directory. The engine may still hold files open
// for a moment after a logout, so removal is retried.
func (d *Dir) Remove(ctx context.Context, tenantID string) error {
	p := d.Path(tenantID)
	var err error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if err = os.RemoveAll(p); err == nil {
			return nil
		}
		d.logger.Warn("removing session dir failed", "tenant_id", tenantID, "attempt", attempt, "error", err)
		if attempt == d.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.delay):
		}
	}
	return fmt.Errorf("removing session dir for %s after %d attempts: %w", tenantID, d.attempts, err)
}

// safeName maps a tenant id onto a single path element. Ids made only of
// letters, digits, '-' and '_' are used as-is; anything else is hex-encoded
// behind a '~', which no plain id contains.
func safeName(tenantID string) string {
	for _, r := range tenantID {
		ok := r == '-' || r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !ok {
			return "~" + hex.EncodeToString([]byte(tenantID))
		}
	}
	return tenantID
}
