// Package app wires configuration, storage, domain services, the HTTP
// router and the websocket hub into a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jhsobrinho/educareapp-sub000/internal/access"
	"github.com/jhsobrinho/educareapp-sub000/internal/allocation"
	"github.com/jhsobrinho/educareapp-sub000/internal/config"
	apperrors "github.com/jhsobrinho/educareapp-sub000/internal/errors"
	"github.com/jhsobrinho/educareapp-sub000/internal/exporter"
	"github.com/jhsobrinho/educareapp-sub000/internal/infrastructure"
	"github.com/jhsobrinho/educareapp-sub000/internal/license"
	custommw "github.com/jhsobrinho/educareapp-sub000/internal/middleware"
	"github.com/jhsobrinho/educareapp-sub000/internal/notify"
	"github.com/jhsobrinho/educareapp-sub000/internal/storage"
	"github.com/jhsobrinho/educareapp-sub000/internal/storage/memory"
	"github.com/jhsobrinho/educareapp-sub000/internal/storage/postgres"
	"github.com/jhsobrinho/educareapp-sub000/internal/team"
	handlers "github.com/jhsobrinho/educareapp-sub000/internal/transport/http"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppName identifies the service in startup logs
const AppName = "Educare Licensing Service"

// Application is the dependency container for the running service
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	Router *chi.Mux
	Server *http.Server

	Hub         *notify.Hub
	Licenses    *license.Store
	Teams       *team.Store
	Coordinator *allocation.Coordinator
	Validator   *license.Validator
	Gate        *access.Gate
	Keys        *license.KeyGenerator

	cache        *license.ValidationCache
	pool         *pgxpool.Pool
	pinger       storage.Pinger
	otelShutdown infrastructure.TelemetryShutdown
}

// NewApplication builds a fully wired application from configuration
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.String("storage_driver", cfg.Storage.Driver),
	)

	otelShutdown, err := infrastructure.InitializeTelemetry(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	app := &Application{
		Config:       cfg,
		Logger:       logger,
		otelShutdown: otelShutdown,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds stores, the coordinator and the hub on top
// of the configured storage driver.
func (a *Application) initializeServices() error {
	ctx := context.Background()

	var (
		licenseRepo storage.LicenseRepository
		teamRepo    storage.TeamRepository
		pinger      storage.Pinger
	)

	switch a.Config.Storage.Driver {
	case "postgres":
		pool, err := postgres.Connect(ctx, a.Config.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if a.Config.Storage.Migrate {
			if err := postgres.Migrate(ctx, pool, a.Logger); err != nil {
				pool.Close()
				return fmt.Errorf("failed to apply migrations: %w", err)
			}
		}
		a.pool = pool
		repo := postgres.NewLicenseRepository(pool)
		licenseRepo = repo
		teamRepo = postgres.NewTeamRepository(pool)
		pinger = repo
	default:
		repo := memory.NewLicenseRepository()
		licenseRepo = repo
		teamRepo = memory.NewTeamRepository()
		pinger = repo
	}
	a.pinger = pinger

	a.cache = license.NewValidationCache(
		a.Config.License.ValidationCacheTTL,
		a.Config.License.ValidationCacheMax,
	)

	a.Keys = license.NewKeyGenerator(a.Config.License.KeySecret)
	a.Licenses = license.NewStore(licenseRepo, a.Logger, license.WithValidationCache(a.cache))
	a.Teams = team.NewStore(teamRepo, a.Logger)
	a.Validator = license.NewValidator(a.Licenses, a.Keys, a.cache, a.Logger)
	a.Gate = access.NewGate(access.DefaultMatrix(), a.Logger)

	a.Hub = notify.NewHub(a.Logger)
	a.Hub.Start()

	a.Coordinator = allocation.NewCoordinator(a.Licenses, a.Teams, a.Hub, a.Logger)

	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Keep the websocket route outside the wrapping middleware so the
	// upgrader sees the bare ResponseWriter.
	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)

	r.HandleFunc("/ws", a.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(custommw.StructuredLogger(a.Logger))
		r.Use(custommw.Recoverer(a.Logger))
		r.Use(custommw.SecurityHeaders)
		r.Use(custommw.CORS(a.corsConfig()))

		if a.Config.Security.RateLimit.Enabled {
			r.Use(custommw.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	a.Router = r
}

// setupAPIRoutes mounts the /api handlers
func (a *Application) setupAPIRoutes(r chi.Router) {
	errorHandler := apperrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)
	validation := custommw.NewValidationMiddleware(a.Logger, errorHandler)
	report := exporter.NewLicenseReport(a.Logger)

	licenseHandler := handlers.NewLicenseHandler(
		a.Licenses, a.Validator, a.Coordinator, a.Keys,
		a.Gate, validation, errorHandler, a.Hub, a.Logger,
	)
	teamHandler := handlers.NewTeamHandler(
		a.Teams, a.Licenses, a.Coordinator,
		a.Gate, validation, errorHandler, a.Logger,
	)
	allocationHandler := handlers.NewAllocationHandler(
		a.Coordinator, a.Gate, validation, errorHandler, a.Logger,
	)
	reportHandler := handlers.NewReportHandler(
		a.Licenses, a.Teams, report, a.Gate, errorHandler, a.Logger,
	)
	healthHandler := handlers.NewHealthHandler(a.pinger, Version, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(validation.ValidateRequest)

		r.Mount("/health", healthHandler.Routes())
		r.Mount("/licenses", licenseHandler.Routes())
		r.Mount("/teams", teamHandler.Routes())
		r.Mount("/allocations", allocationHandler.Routes())
		r.Mount("/reports", reportHandler.Routes())

		r.NotFound(errorHandler.NotFound)
		r.MethodNotAllowed(errorHandler.MethodNotAllowed)
	})
}

// corsConfig builds the CORS configuration from security settings
func (a *Application) corsConfig() custommw.CORSConfig {
	cfg := custommw.CORSConfig{
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
		Logger:           a.Logger,
	}
	if a.Config.Security.EnableCORS {
		cfg.AllowedOrigins = a.Config.Security.AllowedOrigins
	}
	return cfg
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Run starts the server and blocks until an interrupt or server error
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(gctx, "http server listening",
			slog.String("addr", a.Server.Addr),
		)
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Stop gracefully shuts down the server, hub, cache and storage
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.Hub.Stop()
	a.cache.Stop()

	if a.pool != nil {
		a.pool.Close()
	}

	if a.otelShutdown != nil {
		if err := a.otelShutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "telemetry shutdown error",
				slog.String("error", err.Error()),
			)
		}
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}

// handleWebSocket upgrades /ws connections and hands them to the hub
func (a *Application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || a.Config.Logging.Development {
				return true
			}
			for _, allowed := range a.Config.Security.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			a.Logger.ErrorContext(ctx, "websocket upgrade error",
				slog.Int("status", status),
				slog.String("reason", reason.Error()),
			)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.ErrorContext(ctx, "websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		return
	}

	a.Logger.InfoContext(ctx, "websocket client connected",
		slog.String("remote_addr", r.RemoteAddr),
	)

	notify.ServeWS(a.Hub, conn, a.Logger)
}
