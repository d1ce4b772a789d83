package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/farellandr/ticketflow/config"
	"github.com/farellandr/ticketflow/internal/availability"
	"github.com/farellandr/ticketflow/internal/confirmation"
	"github.com/farellandr/ticketflow/internal/handlers"
	"github.com/farellandr/ticketflow/internal/helpers"
	"github.com/farellandr/ticketflow/internal/middleware"
	"github.com/farellandr/ticketflow/internal/registrations"
	"github.com/farellandr/ticketflow/internal/webhooks"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *gin.Engine
	manager *availability.Manager
}

// Start opens the database for cfg and serves until ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := config.InitDatabase(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	srv, err := New(cfg, db, availability.NewPGFeed(cfg.ListenDSN(), logger), logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// New wires the reconciliation pipeline on top of db. feed supplies live
// inventory changes to the availability manager.
func New(cfg *config.Config, db *gorm.DB, feed availability.Feed, logger *slog.Logger) (*Server, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}

	store := registrations.New(registrations.Mode(cfg.UpsertMode), db, node, logger, registrations.Options{
		DefaultCurrency: cfg.DefaultCurrency,
	})
	poller := confirmation.NewPoller(
		confirmation.NewViewReader(db),
		cfg.ConfirmationPollInterval,
		cfg.ConfirmationMaxAttempts,
		logger,
	)

	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET is empty; platform webhooks will be rejected")
	}
	verifier := webhooks.NewVerifier(cfg.StripeWebhookSecret, cfg.StripeConnectWebhookSecret, cfg.StripeWebhookTolerance)
	dispatcher := webhooks.NewDispatcher(
		verifier,
		store,
		poller.WithAttempts(cfg.WebhookConfirmationAttempts),
		logger,
		webhooks.Options{ConfirmationDeadline: cfg.ConfirmationDeadline},
	)

	loader := availability.NewGormLoader(db)
	manager := availability.NewManager(availability.Config{
		MaxChannels:          cfg.AvailabilityMaxChannels,
		BaseDelay:            cfg.AvailabilityBaseDelay,
		MaxReconnectAttempts: cfg.AvailabilityMaxReconnects,
		LowStockThreshold:    cfg.AvailabilityLowStockThreshold,
	}, loader, feed, logger)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))

	setupRoutes(r, routes{
		jwtSecret:    cfg.JWTSecret,
		webhooks:     handlers.NewWebhookHandler(dispatcher),
		registration: handlers.NewRegistrationHandler(store, poller, cfg.ConfirmationDeadline, logger),
		confirmation: handlers.NewConfirmationHandler(store, poller, helpers.NewConfirmationSigner(cfg.JWTSecret), logger),
		availability: handlers.NewAvailabilityHandler(manager, loader, logger),
		health:       handlers.NewHealthHandler(sqlDB, manager),
	})

	return &Server{cfg: cfg, logger: logger, engine: r, manager: manager}, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP until ctx is done, then drains in-flight requests and
// closes every availability channel.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		s.manager.Cleanup()
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts the
// HTTP server down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.manager.Cleanup()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Cleanup sends every open availability stream its final update, so
	// Shutdown does not wait on them.
	s.manager.Cleanup()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return <-errCh
}

type routes struct {
	jwtSecret    string
	webhooks     *handlers.WebhookHandler
	registration *handlers.RegistrationHandler
	confirmation *handlers.ConfirmationHandler
	availability *handlers.AvailabilityHandler
	health       *handlers.HealthHandler
}

func setupRoutes(r *gin.Engine, h routes) {
	r.GET("/health", h.health.Health)

	public := r.Group("/v1")
	{
		hooks := public.Group("/webhooks")
		{
			hooks.POST("/stripe", h.webhooks.Stripe)
			hooks.POST("/stripe/connect", h.webhooks.StripeConnect)
		}

		events := public.Group("/events")
		{
			events.GET("/:id/availability", h.availability.GetAvailability)
			events.GET("/:id/availability/stream", h.availability.StreamAvailability)
		}
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware(h.jwtSecret))
	{
		regs := protected.Group("/registrations")
		{
			regs.POST("", h.registration.CreateRegistration)
			regs.GET("/:id", h.registration.GetRegistration)
			regs.POST("/:id/tickets", h.registration.PersistTickets)
			regs.GET("/:id/confirmation", h.confirmation.GetConfirmation)
			regs.GET("/:id/confirmation/qr", h.confirmation.GenerateConfirmationQR)
		}

		protected.POST("/confirmations/validate", h.confirmation.ValidateConfirmation)
	}
}
