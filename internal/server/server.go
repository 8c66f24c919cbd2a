package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/brendadeeznuts1111/warden/internal/core/engine"
	apperrors "github.com/brendadeeznuts1111/warden/internal/errors"
	"github.com/brendadeeznuts1111/warden/internal/observability"
	"github.com/brendadeeznuts1111/warden/internal/server/handlers"
	servermw "github.com/brendadeeznuts1111/warden/internal/server/middleware"
)

// Options tunes the HTTP server beyond its bind address.
type Options struct {
	// ThrottleRPS is the global request ceiling across all callers. Zero
	// disables the overload guard.
	ThrottleRPS float64
	// ThrottleBurst is the token bucket depth for ThrottleRPS.
	ThrottleBurst int
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	gate   *engine.Gate
	host   string
	port   int
}

// New creates a new HTTP server instance around the admission gate
func New(host string, port int, gate *engine.Gate, opts Options) *Server {
	r := chi.NewRouter()

	// Standard chi middleware
	r.Use(middleware.RealIP)

	// Our custom middleware in correct order (RequestID → Metrics → Logging → Recovery)
	r.Use(servermw.RequestID)      // 1. Request ID (early for correlation)
	r.Use(servermw.RequestMetrics) // 2. Metrics (measure everything)
	r.Use(servermw.ErrorHandler)   // 3. Error handling (after metrics)
	r.Use(servermw.Recovery)       // 4. Panic recovery (outermost)
	if opts.ThrottleRPS > 0 {
		r.Use(servermw.Throttle(opts.ThrottleRPS, opts.ThrottleBurst)) // 5. Overload shed (innermost)
	}

	// Standardized error responses using centralized HandleError
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewNotFoundError("The requested resource was not found")
		HandleError(w, req, err)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource")
		HandleError(w, req, err)
	})

	s := &Server{
		router: r,
		gate:   gate,
		host:   host,
		port:   port,
	}

	// Ensure handlers use the centralized error responder
	handlers.SetHTTPErrorResponder(HandleError)

	// Register routes
	s.registerRoutes()

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	observability.ServerLogger.Info("Starting HTTP server",
		zap.String("host", s.host),
		zap.Int("port", s.port),
		zap.String("addr", addr))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	observability.ServerLogger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.port
}
