package server

import (
	"crypto/subtle"
	"net/http"
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/brendadeeznuts1111/warden/internal/errors"
	"github.com/brendadeeznuts1111/warden/internal/observability"
	"github.com/brendadeeznuts1111/warden/internal/server/handlers"
)

// adminTokenEnv names the environment variable guarding the admin surface.
const adminTokenEnv = "WARDEN_ADMIN_TOKEN"

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	// Standard health endpoints
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	// Version endpoint
	s.router.Get("/version", handlers.VersionHandler)

	// Metrics endpoint (in server package to access HandleError)
	s.router.Get("/metrics", MetricsHandler)

	if s.gate != nil {
		gh := handlers.NewGateHandlers(s.gate)

		s.router.Post("/gate/admit", gh.Admit)
		s.router.Get("/gate/status", gh.Status)
		s.router.Get("/gate/backends", gh.Backends)

		proxy := gh.Proxy("/gate/proxy")
		s.router.Handle("/gate/proxy", proxy)
		s.router.Handle("/gate/proxy/*", proxy)

		s.registerAdminRoutes(gh)
	}
}

// registerAdminRoutes wires the operator surface. The reputation endpoints
// require a bearer token when WARDEN_ADMIN_TOKEN is set; the signal endpoint
// is only enabled with a token, matching its own auth requirements.
func (s *Server) registerAdminRoutes(gh *handlers.GateHandlers) {
	adminToken := os.Getenv(adminTokenEnv)
	logger := observability.ServerLogger

	s.router.Route("/admin", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(requireAdminToken(adminToken))
			r.Get("/reputation", gh.DenyList)
			r.Post("/reputation/clear", gh.ClearReputation)
		})

		if adminToken != "" {
			// HTTP signal dispatch with bearer token auth and rate limiting
			handler := signals.NewHTTPHandler(signals.HTTPConfig{
				TokenAuth: adminToken,
				RateLimit: 10,  // 10 requests per minute
				RateBurst: 5,   // burst size
				Manager:   nil, // use default global manager
			})
			r.Post("/signal", handler.ServeHTTP)
		}
	})

	if logger == nil {
		return
	}
	if adminToken == "" {
		logger.Warn("Admin reputation endpoints are unauthenticated (no " + adminTokenEnv + " set)")
		logger.Debug("Admin signal endpoint disabled (no " + adminTokenEnv + " set)")
		return
	}
	logger.Info("Admin endpoints enabled",
		zap.String("reputation", "/admin/reputation"),
		zap.String("signal", "/admin/signal"),
		zap.String("auth", "bearer token"))
	logger.Warn("Admin endpoints enabled - ensure this server is not exposed to public internet")
}

// requireAdminToken checks Authorization: Bearer against token. An empty
// token disables the check.
func requireAdminToken(token string) func(http.Handler) http.Handler {
	expected := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			header := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(header, expected) != 1 {
				HandleError(w, r, apperrors.NewUnauthorizedError("Valid admin token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
