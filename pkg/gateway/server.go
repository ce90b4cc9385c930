package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/benthamhq/bentham/pkg/auth"
	"github.com/benthamhq/bentham/pkg/log"
	"github.com/benthamhq/bentham/pkg/metrics"
	"github.com/benthamhq/bentham/pkg/orchestrator"
	"github.com/benthamhq/bentham/pkg/ratelimit"
	"github.com/benthamhq/bentham/pkg/storage"
	"github.com/benthamhq/bentham/pkg/types"
)

// Config holds gateway settings
type Config struct {
	ListenAddr   string
	MaxBodyBytes int64
}

// Server is the tenant-facing HTTP server
type Server struct {
	cfg      Config
	orch     *orchestrator.Orchestrator
	keychain *auth.Keychain
	limiter  ratelimit.Limiter
	store    storage.Store
	redis    *ratelimit.RedisLimiter
	logger   zerolog.Logger

	httpServer *http.Server
}

// NewServer creates the gateway. redis may be nil when the deployment
// runs the in-process limiter; the health report then marks the check
// disabled.
func NewServer(cfg Config, orch *orchestrator.Orchestrator, keychain *auth.Keychain, limiter ratelimit.Limiter, store storage.Store, redis *ratelimit.RedisLimiter) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		cfg:      cfg,
		orch:     orch,
		keychain: keychain,
		limiter:  limiter,
		store:    store,
		redis:    redis,
		logger:   log.WithComponent("gateway"),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler assembles the full route tree. Exposed so tests can drive
// the gateway through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(securityHeaders)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, types.ErrCodeNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, types.ErrCodeNotFound, "method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.bodyCap)
		r.Use(s.authenticate)
		r.Use(s.rateLimit)

		r.With(requirePermission(PermStudiesWrite)).Post("/v1/studies", s.handleCreateStudy)
		r.With(requirePermission(PermStudiesRead)).Get("/v1/studies", s.handleListStudies)
		r.With(requirePermission(PermStudiesRead)).Get("/v1/studies/{studyID}", s.handleGetStudy)
		r.With(requirePermission(PermStudiesRead)).Get("/v1/studies/{studyID}/results", s.handleGetResults)
		r.With(requirePermission(PermStudiesWrite)).Post("/v1/studies/{studyID}/pause", s.handlePauseStudy)
		r.With(requirePermission(PermStudiesWrite)).Post("/v1/studies/{studyID}/resume", s.handleResumeStudy)
		r.With(requirePermission(PermStudiesWrite)).Delete("/v1/studies/{studyID}", s.handleCancelStudy)
		r.With(requirePermission(PermStudiesRead)).Get("/v1/costs/{studyID}", s.handleGetCosts)
	})

	return r
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("Gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Gateway shutting down")
	return s.httpServer.Shutdown(ctx)
}
