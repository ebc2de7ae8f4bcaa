package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/harborview/mediahub/internal/sessions/domain"
	"github.com/harborview/mediahub/internal/sessions/events"
	httpapi "github.com/harborview/mediahub/internal/sessions/http"
	"github.com/harborview/mediahub/internal/sessions/service"
	"github.com/harborview/mediahub/internal/sessions/store"
	"github.com/harborview/mediahub/internal/sessions/store/drivers/sqlite"
	"github.com/harborview/mediahub/internal/sessions/transport"
	"github.com/harborview/mediahub/pkg/cryptox"
	"github.com/harborview/mediahub/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the session service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db  store.Store
	bus *events.Bus
	hub *transport.Hub

	// Services
	registry            *service.SessionRegistry
	resolver            *service.AuthorizationResolver
	dispatch            *service.DispatchEngine
	tokenService        *service.TokenService
	authGuard           *service.AuthGuard
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "mediahub",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()

	if err := app.bootstrapAdmin(context.Background()); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("session service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down session service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	// End every live session so subscribers see the full lifecycle.
	app.registry.Shutdown(ctx)

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("session service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes the bus, registry and the services around them
func (app *Application) initServices() {
	app.bus = events.NewBus()

	app.registry = service.NewSessionRegistry(app.bus,
		service.WithIdleTimeout(app.cfg.SessionIdleTimeout),
	)
	app.resolver = &service.AuthorizationResolver{
		Store:                   app.db,
		ActivityRefreshInterval: app.cfg.ActivityRefreshInterval,
	}
	app.tokenService = &service.TokenService{
		Store:    app.db,
		Bus:      app.bus,
		Registry: app.registry,
	}

	app.hub = transport.NewHub(app.bus)
	app.dispatch = service.NewDispatchEngine(app.registry, app.hub, app.bus)

	// Default observers.
	service.NewActivityLogger(app.logger, app.bus)
	app.authGuard = service.NewAuthGuard(app.logger, app.bus)

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.registry,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.TokenInactivityTimeout,
	)
}

// bootstrapAdmin creates the first administrator when the user table is
// empty. The generated password is logged once; it must be changed after
// first login.
func (app *Application) bootstrapAdmin(ctx context.Context) error {
	empty, err := app.db.Users().IsEmpty(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: check users: %w", err)
	}
	if !empty {
		return nil
	}

	password := os.Getenv("MEDIAHUB_ADMIN_PASSWORD")
	generated := password == ""
	if generated {
		password, err = cryptox.GeneratePassword()
		if err != nil {
			return fmt.Errorf("bootstrap: generate password: %w", err)
		}
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return fmt.Errorf("bootstrap: hash password: %w", err)
	}

	now := time.Now()
	admin := domain.User{
		ID:              uuid.New(),
		Username:        "admin",
		PasswordHash:    hash,
		IsAdministrator: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := app.db.Users().Create(ctx, admin); err != nil {
		return fmt.Errorf("bootstrap: create admin: %w", err)
	}

	if generated {
		app.logger.Warn("created initial administrator", "username", admin.Username, "password", password)
	} else {
		app.logger.Info("created initial administrator", "username", admin.Username)
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.Resolver = app.resolver
	router.Registry = app.registry
	router.Dispatch = app.dispatch
	router.TokenService = app.tokenService
	router.AuthGuard = app.authGuard
	router.ApplyRoutes()

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
