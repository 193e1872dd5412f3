package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/voiceops/voiceops/internal/api/middleware"
	"github.com/voiceops/voiceops/internal/config"
	"github.com/voiceops/voiceops/internal/siptest"
	"github.com/voiceops/voiceops/internal/telephony"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux
	cfg    *config.Config

	trunks  *telephony.TrunkService
	rules   *telephony.RuleService
	calls   *telephony.CallService
	prober  *siptest.Prober
	metrics http.Handler
}

// NewServer creates the HTTP handler with all routes mounted. prober may be
// nil, in which case the trunk probe endpoint reports 503. metrics, if
// non-nil, is mounted at /metrics.
func NewServer(cfg *config.Config, trunks *telephony.TrunkService, rules *telephony.RuleService, calls *telephony.CallService, prober *siptest.Prober, metrics http.Handler) (*Server, error) {
	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		trunks:  trunks,
		rules:   rules,
		calls:   calls,
		prober:  prober,
		metrics: metrics,
	}

	authSecret, err := cfg.AuthSecretBytes()
	if err != nil {
		return nil, err
	}

	s.routes(authSecret)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes(authSecret []byte) {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders(false))
	r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.cfg.CORSOrigins)))

	limiter := middleware.NewIPRateLimiter(middleware.RateLimitConfig{
		Rate:            rate.Limit(s.cfg.RateLimitRPS),
		Burst:           s.cfg.RateLimitBurst,
		CleanupInterval: middleware.DefaultRateLimitConfig().CleanupInterval,
		MaxAge:          middleware.DefaultRateLimitConfig().MaxAge,
	})
	r.Use(middleware.RateLimit(limiter))

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated routes.
		r.Get("/health", s.handleHealth)

		// Everything else requires a tenant bearer token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(authSecret))

			// Probes dial external SIP hosts, so they get their own
			// tighter limiter on top of the global one.
			probeLimiter := middleware.NewIPRateLimiter(middleware.StrictRateLimitConfig())

			r.Route("/sip-trunks", func(r chi.Router) {
				r.Get("/", s.handleListTrunks)
				r.Post("/", s.handleCreateTrunk)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetTrunk)
					r.Put("/", s.handleUpdateTrunk)
					r.Delete("/", s.handleDeleteTrunk)
					r.With(middleware.RateLimit(probeLimiter)).Post("/probe", s.handleProbeTrunk)
				})
			})

			r.Route("/dispatch-rules", func(r chi.Router) {
				r.Get("/", s.handleListRules)
				r.Post("/", s.handleCreateRule)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRule)
					r.Put("/", s.handleUpdateRule)
					r.Delete("/", s.handleDeleteRule)
				})
			})

			r.Route("/calls", func(r chi.Router) {
				r.Get("/", s.handleListCalls)
				r.Post("/outbound", s.handleStartOutboundCall)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetCall)
					r.Post("/active", s.handleMarkCallActive)
					r.Post("/end", s.handleEndCall)
				})
			})
		})
	})

	slog.Info("api routes mounted")
}

// tenant resolves the authenticated caller for a request.
func tenant(r *http.Request) telephony.Tenant {
	t := middleware.TenantFromContext(r.Context())
	return telephony.Tenant{OwnerID: t.OwnerID, ProjectID: t.ProjectID}
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
