// Package api exposes the HTTP surface: telephony webhooks, the media
// websocket that carries call audio, the admin API, and operational
// endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxbridge/voxbridge/internal/ai"
	"github.com/voxbridge/voxbridge/internal/api/middleware"
	"github.com/voxbridge/voxbridge/internal/audio"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/database"
	"github.com/voxbridge/voxbridge/internal/metrics"
	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/internal/store"
)

// LegDialer opens the AI leg for one call.
type LegDialer func(ctx context.Context, cfg ai.SessionConfig) (ai.Leg, error)

// Repositories groups the persistence interfaces the server consumes.
type Repositories struct {
	Orgs    database.OrganizationRepository
	Leads   database.LeadRepository
	Appts   database.AppointmentRepository
	Records database.CallRecordRepository
	Numbers database.InboundNumberRepository
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router      *chi.Mux
	cfg         *config.Config
	repos       Repositories
	manager     *session.Manager
	dialer      LegDialer
	control     session.CallControl
	crm         crmEnqueuer
	transcripts *store.Transcripts
	totals      *metrics.Totals
	logger      *slog.Logger

	// bridges tracks the live media bridge per call for metrics; closed
	// bridges fold their counters into the totals below.
	bridgeMu    sync.Mutex
	bridges     map[string]*audio.Bridge
	closedStats audio.BridgeStats

	// pending holds calls announced by the incoming-call webhook that have
	// not opened their media stream yet.
	pendMu  sync.Mutex
	pending map[string]*pendingCall
}

type crmEnqueuer interface {
	EnqueueLeadSync(leadID int64)
}

// startTime anchors the uptime metric.
var startTime = time.Now()

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(cfg *config.Config, repos Repositories, manager *session.Manager,
	dialer LegDialer, control session.CallControl, crm crmEnqueuer,
	transcripts *store.Transcripts, totals *metrics.Totals, logger *slog.Logger) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		cfg:         cfg,
		repos:       repos,
		manager:     manager,
		dialer:      dialer,
		control:     control,
		crm:         crm,
		transcripts: transcripts,
		totals:      totals,
		logger:      logger.With("subsystem", "api"),
		bridges:     make(map[string]*audio.Bridge),
		pending:     make(map[string]*pendingCall),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RegisterMetrics installs the scrape-time collector on reg.
func (s *Server) RegisterMetrics(reg *prometheus.Registry, collector prometheus.Collector) {
	reg.MustRegister(collector)
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger(s.logger))
	r.Use(middleware.Recoverer(s.logger))
	r.Use(middleware.SecurityHeaders(s.cfg.TLSEnabled()))

	webhookLimiter := middleware.NewIPRateLimiter(middleware.WebhookRateLimitConfig(s.cfg.RateLimitRPS), s.logger)

	secret := []byte(s.cfg.WebhookSecret)

	// Telephony provider webhooks.
	r.Route("/webhooks/voice", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookLimiter))
		r.Use(middleware.VerifyWebhook(secret))
		r.Post("/incoming", s.handleIncomingCall)
		r.Post("/status", s.handleCallStatus)
	})

	// Media websocket; authenticated by the per-call stream token issued
	// in the incoming-call response.
	r.Get("/media/{callID}", s.handleMediaStream)

	// Admin API.
	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.WebhookSecret != "" {
			r.Use(middleware.RequireBearerAuth(secret))
		}
		r.Route("/organizations", func(r chi.Router) {
			r.Get("/", s.handleListOrgs)
			r.Post("/", s.handleCreateOrg)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetOrg)
				r.Put("/", s.handleUpdateOrg)
				r.Delete("/", s.handleDeleteOrg)
				r.Get("/numbers", s.handleListNumbers)
				r.Post("/numbers", s.handleCreateNumber)
				r.Get("/calls", s.handleListCalls)
				r.Get("/leads", s.handleListLeads)
			})
		})
		r.Delete("/numbers/{id}", s.handleDeleteNumber)
	})

	// Operational endpoints.
	r.Get("/healthz", s.handleHealth)

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(s.manager, s, s.repos.Records, s.totals, startTime))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// trackBridge registers a live bridge for scrape-time media stats.
func (s *Server) trackBridge(callID string, b *audio.Bridge) {
	s.bridgeMu.Lock()
	s.bridges[callID] = b
	s.bridgeMu.Unlock()
}

// untrackBridge folds a finished bridge's counters into the closed totals.
func (s *Server) untrackBridge(callID string) {
	s.bridgeMu.Lock()
	defer s.bridgeMu.Unlock()
	b, ok := s.bridges[callID]
	if !ok {
		return
	}
	st := b.Stats()
	s.closedStats.FramesCallerToAI += st.FramesCallerToAI
	s.closedStats.FramesAIToCaller += st.FramesAIToCaller
	s.closedStats.FramesDropped += st.FramesDropped
	s.closedStats.FramesSuppressed += st.FramesSuppressed
	delete(s.bridges, callID)
}

// AggregateFramesForwarded implements metrics.MediaStatsProvider.
func (s *Server) AggregateFramesForwarded() uint64 {
	s.bridgeMu.Lock()
	defer s.bridgeMu.Unlock()
	total := s.closedStats.FramesCallerToAI + s.closedStats.FramesAIToCaller
	for _, b := range s.bridges {
		st := b.Stats()
		total += st.FramesCallerToAI + st.FramesAIToCaller
	}
	return total
}

// AggregateFramesDropped implements metrics.MediaStatsProvider.
func (s *Server) AggregateFramesDropped() uint64 {
	s.bridgeMu.Lock()
	defer s.bridgeMu.Unlock()
	total := s.closedStats.FramesDropped
	for _, b := range s.bridges {
		total += b.Stats().FramesDropped
	}
	return total
}

// AggregateFramesSuppressed implements metrics.MediaStatsProvider.
func (s *Server) AggregateFramesSuppressed() uint64 {
	s.bridgeMu.Lock()
	defer s.bridgeMu.Unlock()
	total := s.closedStats.FramesSuppressed
	for _, b := range s.bridges {
		total += b.Stats().FramesSuppressed
	}
	return total
}
