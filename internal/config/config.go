package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Disabled turns off an optional listener when used as its address.
const Disabled = "-"

type Config struct {
	HTTPAddr  string // WAGATE_HTTP_ADDR (default ":3001")
	GRPCAddr  string // WAGATE_GRPC_ADDR (default ":9090"; "-" = disabled)
	AuthToken string // WAGATE_AUTH_TOKEN (optional, empty = auth disabled)
	// AllowedOrigins gate CORS and WebSocket upgrades. "*" allows any origin.
	AllowedOrigins []string // WAGATE_ALLOWED_ORIGINS (default "http://localhost:5173")

	EngineNATSURL string        // WAGATE_ENGINE_NATS_URL (default WAGATE_NATS_URL; one is required)
	EngineSubject string        // WAGATE_ENGINE_SUBJECT (default "wagate.engine")
	EngineTimeout time.Duration // WAGATE_ENGINE_TIMEOUT (default 30s)
	NATSURL       string        // WAGATE_NATS_URL (optional, empty = no event mirror)
	DatabaseURL   string        // WAGATE_DATABASE_URL (optional, empty = in-memory journal)

	// JournalRetention bounds how long the PostgreSQL journal keeps events.
	JournalRetention time.Duration // WAGATE_JOURNAL_RETENTION (default 0 = keep forever)

	SessionDir     string        // WAGATE_SESSION_DIR (default $TMPDIR/.wagate_auth)
	PurgeOnLogout  bool          // WAGATE_PURGE_ON_LOGOUT (default true)
	ReconnectDelay time.Duration // WAGATE_RECONNECT_DELAY (default 500ms)
	ConnectTimeout time.Duration // WAGATE_CONNECT_TIMEOUT (default 2m)

	MediaTimeout  time.Duration // WAGATE_MEDIA_TIMEOUT (default 30s)
	MediaMaxBytes int64         // WAGATE_MEDIA_MAX_BYTES (default 16 MiB)

	PresenceEvictAfter time.Duration // WAGATE_PRESENCE_EVICT_AFTER (default 30m)
	LogLevel           slog.Level    // WAGATE_LOG_LEVEL (default "info")

	// Sync settings
	SyncInterval   time.Duration // WAGATE_SYNC_INTERVAL (default 0 = disabled)
	SyncS3Bucket   string        // WAGATE_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // WAGATE_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // WAGATE_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // WAGATE_SYNC_S3_KEY (default "wagate/journal.jsonl")
}

func Load() (*Config, error) {
	c := &Config{
		HTTPAddr:       envOrDefault("WAGATE_HTTP_ADDR", ":3001"),
		GRPCAddr:       envOrDefault("WAGATE_GRPC_ADDR", ":9090"),
		AuthToken:      os.Getenv("WAGATE_AUTH_TOKEN"),
		AllowedOrigins: splitList(envOrDefault("WAGATE_ALLOWED_ORIGINS", "http://localhost:5173")),
		NATSURL:        os.Getenv("WAGATE_NATS_URL"),
		EngineSubject:  envOrDefault("WAGATE_ENGINE_SUBJECT", "wagate.engine"),
		DatabaseURL:    os.Getenv("WAGATE_DATABASE_URL"),
		SessionDir:     envOrDefault("WAGATE_SESSION_DIR", filepath.Join(os.TempDir(), ".wagate_auth")),
		SyncS3Bucket:   os.Getenv("WAGATE_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("WAGATE_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("WAGATE_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("WAGATE_SYNC_S3_KEY", "wagate/journal.jsonl"),
	}
	c.EngineNATSURL = envOrDefault("WAGATE_ENGINE_NATS_URL", c.NATSURL)
	if c.EngineNATSURL == "" {
		return nil, fmt.Errorf("WAGATE_ENGINE_NATS_URL or WAGATE_NATS_URL is required")
	}

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"WAGATE_ENGINE_TIMEOUT", "30s", &c.EngineTimeout},
		{"WAGATE_RECONNECT_DELAY", "500ms", &c.ReconnectDelay},
		{"WAGATE_CONNECT_TIMEOUT", "2m", &c.ConnectTimeout},
		{"WAGATE_MEDIA_TIMEOUT", "30s", &c.MediaTimeout},
		{"WAGATE_PRESENCE_EVICT_AFTER", "30m", &c.PresenceEvictAfter},
		{"WAGATE_SYNC_INTERVAL", "0", &c.SyncInterval},
		{"WAGATE_JOURNAL_RETENTION", "0", &c.JournalRetention},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(envOrDefault(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("%s: must not be negative", d.key)
		}
		*d.dst = v
	}

	purge, err := strconv.ParseBool(envOrDefault("WAGATE_PURGE_ON_LOGOUT", "true"))
	if err != nil {
		return nil, fmt.Errorf("WAGATE_PURGE_ON_LOGOUT: %w", err)
	}
	c.PurgeOnLogout = purge

	maxBytes, err := strconv.ParseInt(envOrDefault("WAGATE_MEDIA_MAX_BYTES", "16777216"), 10, 64)
	if err != nil || maxBytes <= 0 {
		return nil, fmt.Errorf("WAGATE_MEDIA_MAX_BYTES: must be a positive integer")
	}
	c.MediaMaxBytes = maxBytes

	if err := c.LogLevel.UnmarshalText([]byte(envOrDefault("WAGATE_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("WAGATE_LOG_LEVEL: %w", err)
	}

	return c, nil
}

// GRPCEnabled reports whether the gRPC health listener should start.
func (c *Config) GRPCEnabled() bool {
	return c.GRPCAddr != "" && c.GRPCAddr != Disabled
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
