// Package server exposes the report service over HTTP: the public
// submission endpoints, the admin surface behind the secret route, and the
// common middleware stack.
package server

import (
	"log/slog"
	"net/http"

	"github.com/finpanel/report-service/internal/report"
	"github.com/finpanel/report-service/internal/secretroute"
	"github.com/finpanel/report-service/internal/store"
	"github.com/go-chi/chi/v5"
)

// Config holds server configuration.
type Config struct {
	AdminUsername     string
	AdminPasswordHash string
	RateLimit         RateLimiterConfig
}

// Server is the HTTP server for the report service.
type Server struct {
	config    Config
	store     store.Store
	submitter *report.Submitter
	routes    *secretroute.Manager
	sessions  *sessionManager
	rl        *RateLimiter
	logger    *slog.Logger
	router    chi.Router
}

// NewServer wires the handlers around the given pipeline and store.
func NewServer(cfg Config, st store.Store, submitter *report.Submitter, routes *secretroute.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimit.GeneralRequestsPerMin == 0 {
		cfg.RateLimit = DefaultRateLimiterConfig()
	}

	srv := &Server{
		config:    cfg,
		store:     st,
		submitter: submitter,
		routes:    routes,
		sessions:  newSessionManager(st, logger),
		rl:        NewRateLimiter(cfg.RateLimit),
		logger:    logger,
	}
	srv.router = srv.buildRoutes()
	return srv
}

func (s *Server) buildRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(SecurityHeadersMiddleware)
	r.Use(IPRateLimitMiddleware(s.rl))

	// Public routes.
	r.Post("/reports/web", s.HandleSubmitReport)
	r.Get("/reports/web/status/{ticketID}", s.HandleReportStatus)

	// Admin entry points.
	r.Post("/admin/access", s.HandleAdminAccess)
	r.Get("/secret-{token:[a-zA-Z0-9]{16}}-admin", s.HandleSecretRouteExchange)

	// Session-guarded admin surface.
	r.Group(func(r chi.Router) {
		r.Use(s.RequireAdminSession)
		r.Get("/reports/web/admin", s.HandleAdminList)
		r.Post("/reports/web/admin/mark-spam/{ticketID}", s.HandleMarkSpam)
		r.Post("/reports/web/admin/close/{ticketID}", s.HandleCloseReport)
		r.Post("/reports/web/admin/respond/{ticketID}", s.HandleRespondReport)
		r.Get("/reports/web/admin/security-stats", s.HandleSecurityStats)
		r.Post("/reports/web/admin/extend-access", s.HandleExtendAccess)
		r.Post("/admin/logout", s.HandleLogout)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Stop releases server resources.
func (s *Server) Stop() {
	s.rl.Stop()
}
