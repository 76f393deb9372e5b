package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxbridge/voxbridge/internal/ai"
	"github.com/voxbridge/voxbridge/internal/api"
	"github.com/voxbridge/voxbridge/internal/api/middleware"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/crm"
	"github.com/voxbridge/voxbridge/internal/database"
	"github.com/voxbridge/voxbridge/internal/database/pgstore"
	"github.com/voxbridge/voxbridge/internal/metrics"
	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/internal/store"
	"github.com/voxbridge/voxbridge/internal/telephony"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting voxbridge",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"postgres", cfg.PostgresDSN != "",
	)

	repos, closeDB, err := openRepositories(cfg)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer closeDB()

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	manager := session.NewManager(logger)
	totals := &metrics.Totals{}
	transcripts := store.NewTranscripts(repos.Records, logger)

	// CRM lead sync runs only when a webhook endpoint is configured; the
	// dispatcher persists leads either way.
	var crmWorker *crm.Worker
	var crmEnqueuer interface{ EnqueueLeadSync(int64) }
	if cfg.CRMWebhookURL != "" {
		client := crm.NewWebhookClient(cfg.CRMWebhookURL, cfg.CRMWebhookSecret)
		crmWorker = crm.NewWorker(repos.Leads, client, cfg.CRMSyncInterval, logger)
		crmEnqueuer = crmWorker
		go crmWorker.Run(appCtx)
		slog.Info("crm lead sync enabled", "interval", cfg.CRMSyncInterval)
	} else {
		slog.Info("crm lead sync disabled, no webhook url configured")
	}

	// Call control degrades to stream-close-only teardown without a
	// provider API.
	var control session.CallControl
	if cfg.TelephonyAPIURL != "" {
		control = telephony.NewRESTControl(cfg.TelephonyAPIURL, cfg.TelephonyAPIKey, logger)
	} else {
		slog.Warn("telephony api not configured, transfers unavailable")
		control = &telephony.NoopControl{Logger: logger}
	}

	dialer := func(ctx context.Context, sc ai.SessionConfig) (ai.Leg, error) {
		return ai.Dial(ctx, cfg.AIEndpoint, cfg.AIAPIKey, sc, logger)
	}

	go retentionLoop(appCtx, repos)

	handler := api.NewServer(cfg, repos, manager, dialer, control, crmEnqueuer,
		transcripts, totals, logger)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: the media websocket stays open for the whole call.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr, "tls", cfg.TLSEnabled())
		var err error
		if cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// With TLS on, keep a plain-HTTP listener that redirects to HTTPS.
	var redirectSrv *http.Server
	if cfg.TLSEnabled() {
		redirectSrv = &http.Server{
			Addr:         ":80",
			Handler:      middleware.HTTPSRedirectHandler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}
		go func() {
			if err := redirectSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Warn("https redirect listener failed", "error", err)
			}
		}()
	}

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout. Live sessions get a chance to
	// finalize their transcripts before the process exits.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down", "active_sessions", manager.Count())
	appCancel()

	if redirectSrv != nil {
		redirectSrv.Shutdown(ctx) //nolint:errcheck
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("voxbridge stopped")
}

// openRepositories selects the storage backend: PostgreSQL when a DSN is
// configured, embedded SQLite otherwise.
func openRepositories(cfg *config.Config) (api.Repositories, func(), error) {
	if cfg.PostgresDSN != "" {
		pg, err := pgstore.New(cfg.PostgresDSN)
		if err != nil {
			return api.Repositories{}, nil, err
		}
		repos := api.Repositories{
			Orgs:    pg.Organizations(),
			Leads:   pg.Leads(),
			Appts:   pg.Appointments(),
			Records: pg.CallRecords(),
			Numbers: pg.Numbers(),
		}
		return repos, func() { pg.Close() }, nil
	}

	db, err := database.Open(cfg.DataDir)
	if err != nil {
		return api.Repositories{}, nil, err
	}
	repos := api.Repositories{
		Orgs:    database.NewOrganizationRepository(db),
		Leads:   database.NewLeadRepository(db),
		Appts:   database.NewAppointmentRepository(db),
		Records: database.NewCallRecordRepository(db),
		Numbers: database.NewInboundNumberRepository(db),
	}
	return repos, func() { db.Close() }, nil
}

// retentionInterval is how often expired call records are purged.
const retentionInterval = 24 * time.Hour

// retentionLoop deletes call records older than each organization's
// retention window.
func retentionLoop(ctx context.Context, repos api.Repositories) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		orgs, err := repos.Orgs.List(ctx)
		if err != nil {
			slog.Error("retention sweep: failed to list organizations", "error", err)
			continue
		}
		for _, org := range orgs {
			if org.RetentionDays <= 0 {
				continue
			}
			n, err := repos.Records.DeleteOlderThan(ctx, org.ID, org.RetentionDays)
			if err != nil {
				slog.Error("retention sweep failed", "org_id", org.ID, "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired call records deleted", "org_id", org.ID, "deleted", n)
			}
		}
	}
}
