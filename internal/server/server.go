// Package server exposes the HTTP API and the WebSocket event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbagent/internal/domain"
	"github.com/alanyoungcy/arbagent/internal/server/handler"
	"github.com/alanyoungcy/arbagent/internal/server/middleware"
	"github.com/alanyoungcy/arbagent/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, authentication is disabled
	RateLimit       int    // requests per window per client; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Storage and Executions may be nil.
type Handlers struct {
	Health     *handler.HealthHandler
	Arb        *handler.ArbHandler
	Trades     *handler.TradeHandler
	Storage    *handler.StorageHandler
	Executions *handler.ExecutionHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain applied. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/arbitrage/find", handlers.Arb.Find)
	mux.HandleFunc("POST /api/arbitrage/execute", handlers.Arb.Execute)
	mux.HandleFunc("GET /api/arbitrage/recent", handlers.Arb.Recent)
	mux.HandleFunc("GET /api/arbitrage/scanner", handlers.Arb.ScannerStatus)
	mux.HandleFunc("POST /api/arbitrage/scanner/start", handlers.Arb.StartScanner)
	mux.HandleFunc("POST /api/arbitrage/scanner/stop", handlers.Arb.StopScanner)

	mux.HandleFunc("POST /api/trades", handlers.Trades.ExecuteTrade)

	if handlers.Storage != nil {
		mux.HandleFunc("GET /api/storage", handlers.Storage.ListPlans)
		mux.HandleFunc("GET /api/storage/{hash}", handlers.Storage.GetPlan)
	}

	if handlers.Executions != nil {
		mux.HandleFunc("GET /api/executions", handlers.Executions.ListExecutions)
		mux.HandleFunc("GET /api/executions/{txHash}", handlers.Executions.GetExecution)
		mux.HandleFunc("GET /api/audit", handlers.Executions.ListAudit)
	}

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	// Outermost first: CORS, logging, rate limit, auth.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Executions wait for a chain receipt.
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server: starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
