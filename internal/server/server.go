package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/server/handler"
	"github.com/quillfx/papertrader/internal/server/middleware"
	"github.com/quillfx/papertrader/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // plaintext key; ignored when APIKeyHash is set
	APIKeyHash  string // bcrypt hash of the key; takes precedence
	RateLimiter domain.RateLimiter
	RatePerSec  int // per-client request budget; 0 disables limiting
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Accounts  *handler.AccountHandler
	Orders    *handler.OrderHandler
	Positions *handler.PositionHandler
	Risk      *handler.RiskHandler
	Specs     *handler.SpecHandler
	Archive   *handler.ArchiveHandler // nil when archival is disabled
}

// Server is the HTTP + WebSocket API server for the paper-trading platform.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health and status (no auth-sensitive data).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Account endpoints.
	mux.HandleFunc("POST /api/accounts", handlers.Accounts.CreateAccount)
	mux.HandleFunc("GET /api/accounts/{id}", handlers.Accounts.GetAccount)
	mux.HandleFunc("GET /api/accounts/{id}/ledger", handlers.Accounts.Ledger)
	mux.HandleFunc("GET /api/accounts/{id}/performance", handlers.Accounts.Performance)

	// Risk endpoints.
	mux.HandleFunc("GET /api/accounts/{id}/risk", handlers.Risk.AccountRisk)
	mux.HandleFunc("GET /api/accounts/{id}/risk/stress", handlers.Risk.StressTest)
	mux.HandleFunc("GET /api/accounts/{id}/risk/events", handlers.Risk.ListEvents)

	// Order endpoints.
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/orders/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)

	// Position endpoints.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.GetPosition)
	mux.HandleFunc("PUT /api/positions/{id}/protection", handlers.Positions.SetProtection)
	mux.HandleFunc("POST /api/positions/{id}/close", handlers.Positions.ClosePosition)

	// Trading configuration.
	mux.HandleFunc("GET /api/specs", handlers.Specs.ListSpecs)
	mux.HandleFunc("GET /api/specs/{symbol}", handlers.Specs.GetSpec)

	// Archival trigger.
	if handlers.Archive != nil {
		mux.HandleFunc("POST /api/archive/trigger", handlers.Archive.TriggerArchive)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, cfg.APIKeyHash)(h)
	if cfg.RateLimiter != nil && cfg.RatePerSec > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RatePerSec, time.Second)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
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
