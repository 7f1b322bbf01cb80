package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"licensekit/internal/config"
	apperrors "licensekit/internal/errors"
	"licensekit/internal/infrastructure"
	"licensekit/internal/license"
	customMiddleware "licensekit/internal/middleware"
	"licensekit/internal/services"
	"licensekit/internal/signature"
	handlers "licensekit/internal/transport/http"
)

// Version is set at build time with -ldflags "-X licensekit/internal/app.Version=...".
var Version = "dev"

// Application represents the main application container
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	Telemetry *infrastructure.Telemetry
	Acquirer  *license.Acquirer
	Licenses  services.LicenseService
	Health    *services.HealthService
	Router    *chi.Mux
	Server    *http.Server
}

// BuildAcquirer creates the reader and acquirer described by cfg. The
// public key, when configured, must load.
func BuildAcquirer(cfg *config.Config, logger *slog.Logger) (*license.Acquirer, error) {
	metrics, err := license.NewReaderMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create reader metrics: %w", err)
	}

	reader := license.NewReader(license.StrategiesFrom(cfg.LocateOptions(logger)), logger, metrics)

	opts := []license.AcquirerOption{license.WithSoftwareVersion(cfg.Product.SoftwareVersion)}
	if cfg.Verify.PublicKeyFile != "" {
		verifier, err := signature.LoadVerifierFile(cfg.Verify.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load public key: %w", err)
		}
		opts = append(opts, license.WithVerifier(verifier))
	} else if cfg.Verify.Required {
		return nil, errors.New("signature verification required but no public key configured")
	}

	return license.NewAcquirer(reader, opts...), nil
}

// NewApplication creates a new application instance. Telemetry is
// initialized from cfg.Telemetry and installed globally.
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	telemetry, err := infrastructure.InitializeOTel(cfg.Telemetry, Version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	acquirer, err := BuildAcquirer(cfg, logger)
	if err != nil {
		_ = telemetry.Shutdown(context.Background())
		return nil, err
	}

	licenses := services.NewLicenseService(acquirer, acquirer.Reader(), cfg.Product.Names, logger)
	a := &Application{
		Config:    cfg,
		Logger:    logger,
		Telemetry: telemetry,
		Acquirer:  acquirer,
		Licenses:  licenses,
		Health:    services.NewHealthService(Version, licenses),
	}

	if err := a.setupRouter(); err != nil {
		_ = telemetry.Shutdown(context.Background())
		return nil, err
	}
	a.createServer()

	return a, nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() error {
	r := chi.NewRouter()
	errorHandler := apperrors.NewErrorHandler(a.Logger, false)

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	// RequestID → OTel → Logger → Recoverer → rate limit
	r.Use(customMiddleware.RequestID)
	otelMiddleware, err := customMiddleware.NewOTel(nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create OpenTelemetry middleware: %w", err)
	}
	r.Use(otelMiddleware.Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(errorHandler))
	r.Use(customMiddleware.SecurityHeaders)

	healthHandler := handlers.NewHealthHandler(a.Health)
	r.Get("/healthz", healthHandler.LivenessCheck)

	if a.Telemetry != nil && a.Telemetry.MetricsHandler != nil {
		r.Handle("/metrics", a.Telemetry.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		if rl := a.Config.Server.RateLimit; rl.Enabled {
			r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
		}

		r.Get("/health", healthHandler.ReadinessCheck)
		r.Get("/version", healthHandler.Version)
		r.Mount("/license", handlers.NewLicenseHandler(a.Licenses, errorHandler, a.Logger).Routes())
	})

	a.Router = r
	return nil
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         a.Config.Server.Address,
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	a.Logger.InfoContext(ctx, "Starting license service",
		slog.String("version", Version),
		slog.String("address", ln.Addr().String()),
		slog.Any("products", a.Config.Product.Names),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "Received shutdown signal")
	}

	return a.Stop(context.WithoutCancel(ctx))
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}
