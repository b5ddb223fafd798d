package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/wagate/internal/broadcast"
	"github.com/alfredjeanlab/wagate/internal/config"
	"github.com/alfredjeanlab/wagate/internal/engine/natsbridge"
	"github.com/alfredjeanlab/wagate/internal/events"
	"github.com/alfredjeanlab/wagate/internal/gateway"
	"github.com/alfredjeanlab/wagate/internal/journal"
	"github.com/alfredjeanlab/wagate/internal/journal/postgres"
	"github.com/alfredjeanlab/wagate/internal/media"
	"github.com/alfredjeanlab/wagate/internal/presence"
	"github.com/alfredjeanlab/wagate/internal/server"
	"github.com/alfredjeanlab/wagate/internal/session"
	"github.com/alfredjeanlab/wagate/internal/sessiondata"
	wasync "github.com/alfredjeanlab/wagate/internal/sync"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/health"
)

const (
	shutdownTimeout    = 10 * time.Second
	journalPrunePeriod = time.Hour
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the gateway server",
	GroupID: "system",
	// No client needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg, logger)
	},
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Engine bridge.
	factory, err := natsbridge.Dial(cfg.EngineNATSURL, cfg.EngineSubject, cfg.EngineTimeout, logger)
	if err != nil {
		return err
	}
	defer factory.Close()
	logger.Info("engine bridge connected", "nats_url", cfg.EngineNATSURL, "subject", cfg.EngineSubject)

	// Journal.
	var (
		jrnl  journal.Journal
		store *postgres.Store
	)
	if cfg.DatabaseURL != "" {
		store, err = postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		jrnl = store
		logger.Info("journal enabled", "backend", "postgres")
	} else {
		jrnl = journal.NewMemory(0)
		logger.Info("journal enabled", "backend", "memory")
	}
	defer func() {
		if err := jrnl.Close(); err != nil {
			logger.Error("error closing journal", "error", err)
		}
	}()

	// Event mirror.
	var publisher events.Publisher
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		publisher = pub
		logger.Info("events enabled", "nats_url", cfg.NATSURL)
	} else {
		publisher = events.NoopPublisher{}
		logger.Info("events disabled (WAGATE_NATS_URL not set)")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "error", err)
		}
	}()

	reg := session.NewRegistry()
	hub := broadcast.New(reg)
	hs := health.NewServer()

	tracker := presence.New()
	tracker.StartReaper(presence.ReaperConfig{
		EvictAfter: cfg.PresenceEvictAfter,
		OnEvict: func(tenantID string) {
			logger.Debug("presence evicted", "tenant_id", tenantID)
		},
	})
	defer tracker.Stop()

	fanout := &server.Fanout{
		Hub:       hub,
		Presence:  tracker,
		Health:    hs,
		Journal:   jrnl,
		Publisher: publisher,
		Logger:    logger,
	}
	mgr := session.NewManager(reg, factory, sessiondata.New(cfg.SessionDir, logger), fanout, session.Options{
		ReconnectDelay: cfg.ReconnectDelay,
		ConnectTimeout: cfg.ConnectTimeout,
		PurgeOnLogout:  cfg.PurgeOnLogout,
		Logger:         logger,
	})
	gw := gateway.New(mgr, media.NewHTTPFetcher(cfg.MediaTimeout, cfg.MediaMaxBytes), logger)

	srv := server.New(server.Options{
		Actions:        gw,
		Sessions:       mgr,
		Hub:            hub,
		Journal:        jrnl,
		Presence:       tracker,
		AuthToken:      cfg.AuthToken,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.NewHTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var stopGRPC func()
	if cfg.GRPCEnabled() {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			httpServer.Close()
			return err
		}
		grpcServer := server.NewGRPCServer(hs, cfg.AuthToken)
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
		stopGRPC = grpcServer.GracefulStop
	}

	scheduler := startSync(ctx, cfg, wasync.Source{Sessions: mgr.List, Journal: jrnl}, logger)

	if store != nil && cfg.JournalRetention > 0 {
		go pruneJournal(ctx, store, cfg.JournalRetention, logger)
	}

	logger.Info("wagate started", "http_addr", cfg.HTTPAddr, "grpc_addr", cfg.GRPCAddr)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case runErr = <-errCh:
		logger.Error("listener failed, shutting down", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop()
		logger.Info("sync scheduler stopped")
	}

	mgr.Shutdown(shutdownCtx)
	hs.Shutdown()
	logger.Info("sessions closed")

	if stopGRPC != nil {
		stopGRPC()
		logger.Info("gRPC server stopped")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	logger.Info("HTTP server stopped")

	logger.Info("shutdown complete")
	return runErr
}

// startSync starts the export scheduler when an interval and at least one
// destination are configured.
func startSync(ctx context.Context, cfg *config.Config, src wasync.Source, logger *slog.Logger) *wasync.Scheduler {
	if cfg.SyncInterval <= 0 {
		return nil
	}
	var dests []wasync.Destination
	if cfg.SyncS3Bucket != "" {
		s3Dest, err := wasync.NewS3Destination(ctx, cfg.SyncS3Bucket, cfg.SyncS3Key, cfg.SyncS3Region, cfg.SyncS3Endpoint)
		if err != nil {
			logger.Error("failed to create S3 sync destination", "error", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}
	if len(dests) == 0 {
		return nil
	}
	scheduler := wasync.NewScheduler(src, dests, cfg.SyncInterval, logger)
	scheduler.Start()
	logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
	return scheduler
}

type journalPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

func pruneJournal(ctx context.Context, store journalPruner, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(journalPrunePeriod)
	defer ticker.Stop()
	for {
		n, err := store.Prune(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("journal prune failed", "error", err)
		case n > 0:
			logger.Info("journal pruned", "deleted", n, "retention", retention)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
