package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Jcapehart2/lockerlink/internal/auth"
	"github.com/Jcapehart2/lockerlink/internal/eventbus"
	"github.com/Jcapehart2/lockerlink/internal/metrics"
	"github.com/Jcapehart2/lockerlink/internal/orders"
	"github.com/Jcapehart2/lockerlink/internal/settings"
)

// OrderStore is the order surface used by the admin routes.
type OrderStore interface {
	Get(ctx context.Context, id int64) (*orders.Order, error)
	Create(ctx context.Context, o *orders.Order) error
	Save(ctx context.Context, o *orders.Order) error
	Notes(ctx context.Context, id int64) ([]orders.Note, error)
}

// SettingsService manages the integration credentials.
type SettingsService interface {
	Status(ctx context.Context) (settings.Status, error)
	Update(ctx context.Context, p settings.Patch) (settings.Status, error)
	TestConnection(ctx context.Context, webhookURL string) error
}

// WebhookLister lists the subscriptions owned by the integration.
type WebhookLister interface {
	Owned(ctx context.Context) ([]eventbus.Subscription, error)
}

// DeliveryLister lists recent deliveries for a subscription.
type DeliveryLister interface {
	ListDeliveries(ctx context.Context, subscriptionID int64, limit int) ([]eventbus.Delivery, error)
}

// Pinger reports database health. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config holds API server configuration
type Config struct {
	Listen string
	// AdminEnabled mounts the token-protected admin routes.
	AdminEnabled bool
	Tokens       []auth.TokenConfig
	// CallbackPrefix is where Deps.Callback is mounted.
	CallbackPrefix string
	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string
}

// Deps are the collaborators behind the routes. Callback is required; the
// rest are only used when AdminEnabled is set.
type Deps struct {
	Callback   http.Handler
	Orders     OrderStore
	Settings   SettingsService
	Webhooks   WebhookLister
	Deliveries DeliveryLister
	DB         Pinger
}

// Server represents the HTTP server
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new server instance
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if config.CallbackPrefix == "" {
		config.CallbackPrefix = "/lockerlink/v1"
	}
	return &Server{
		config:    config,
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("HTTP server starting",
		"listen", s.config.Listen,
		"callback", s.config.CallbackPrefix+"/assignment-update",
		"admin", s.config.AdminEnabled,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler builds the router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	if s.config.MetricsPath != "" {
		r.Method(http.MethodGet, s.config.MetricsPath, metrics.Handler())
	}

	// Authenticated by payload signature, not bearer token.
	r.Mount(s.config.CallbackPrefix, s.deps.Callback)

	if s.config.AdminEnabled {
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Use(middleware.AllowContentType("application/json"))

			r.With(s.requireScopes(auth.ScopeOrdersRead)).Get("/orders/{orderID}", s.handleGetOrder)
			r.With(s.requireScopes(auth.ScopeOrdersWrite)).Post("/orders", s.handleCreateOrder)
			r.With(s.requireScopes(auth.ScopeOrdersWrite)).Put("/orders/{orderID}/shipping", s.handleSetShipping)

			r.With(s.requireScopes(auth.ScopeSettings)).Get("/settings", s.handleGetSettings)
			r.With(s.requireScopes(auth.ScopeSettings)).Put("/settings", s.handleSaveSettings)
			r.With(s.requireScopes(auth.ScopeSettings)).Post("/settings/test-connection", s.handleTestConnection)

			r.With(s.requireScopes(auth.ScopeWebhooks)).Get("/webhooks", s.handleListWebhooks)
		})
	}

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
