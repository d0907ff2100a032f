package main

import (
	"context"
	"fmt"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-auth-server"
	"github.com/goliatone/go-auth-server/activitymap"
	"github.com/goliatone/go-auth-server/config"
	"github.com/goliatone/go-auth-server/persistence"
)

// App holds the wired server components.
type App struct {
	cfg        config.Config
	logger     *glog.BaseLogger
	db         *bun.DB
	repo       auth.RepositoryManager
	controller *auth.AuthController
	http       *auth.HTTPServer
}

// newApp opens the database, runs migrations when enabled and wires
// every service behind the HTTP controller.
func newApp(ctx context.Context, cfg config.Config, logger *glog.BaseLogger) (*App, error) {
	db, err := persistence.Open(ctx, persistence.Options{
		Driver:      cfg.Persistence.Driver,
		DSN:         cfg.Persistence.DSN,
		Debug:       cfg.Persistence.Debug,
		PingTimeout: cfg.Persistence.PingTimeout,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Persistence.Migrate {
		if err := persistence.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	app := &App{
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	if err := app.wire(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.cfg
	hasher := auth.NewBcryptHasher(cfg.Password.HashCost)
	activity := activitymap.NewSink(a.logger.GetLogger("activity"))

	a.repo = auth.NewRepositoryManager(a.db,
		auth.WithPasswordHasher(hasher),
		auth.WithLockoutPolicy(cfg.Lockout),
		auth.WithPasswordPolicy(cfg.Password.Policy()),
		auth.WithRequireConfirmedEmail(cfg.Registration.RequireConfirmedEmail),
		auth.WithUsersLogger(a.logger.GetLogger("users")),
	)
	a.repo.MustValidate()
	users := a.repo.Users()

	clients := auth.NewClientRegistry(a.repo.Applications(), hasher).
		WithActivitySink(activity).
		WithLogger(a.logger.GetLogger("clients"))

	created, err := clients.EnsureClient(ctx, auth.ClientDescriptor{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		DisplayName:  cfg.Auth.DisplayName,
	})
	if err != nil {
		return fmt.Errorf("bootstrap client %s: %w", cfg.Auth.ClientID, err)
	}
	if created {
		a.logger.Info("client created", "client_id", cfg.Auth.ClientID)
	}

	tokens := auth.NewTokenService([]byte(cfg.Auth.SigningKey), cfg.Auth.Issuer, cfg.Auth.ClientID, a.logger.GetLogger("tokens"))

	issuer := auth.NewTokenIssuer(users, tokens).
		WithActivitySink(activity).
		WithLogger(a.logger.GetLogger("issuer"))

	userInfo := auth.NewUserInfoCache(users, auth.NewInMemoryCache(cfg.UserInfo.CacheMaxSize)).
		WithTTL(cfg.UserInfo.CacheTTL).
		WithLogger(a.logger.GetLogger("userinfo"))

	registration := auth.NewRegistrationService(users).
		WithDeterministicIDs(cfg.Registration.DeterministicIDs).
		WithActivitySink(activity).
		WithLogger(a.logger.GetLogger("registration"))

	a.controller = auth.NewAuthController(
		auth.WithControllerLogger(a.logger.GetLogger("http")),
		auth.WithControllerDebug(cfg.Server.Debug),
		auth.WithTokenIssuer(issuer, tokens),
		auth.WithUserInfoCache(userInfo),
		auth.WithAccountServices(registration, auth.NewUserDirectory(users)),
		auth.WithClientRegistry(clients, cfg.Auth.ClientsRole),
	)

	a.http = auth.NewHTTPServer(auth.ServerOptions{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, a.logger.GetLogger("http"))
	r := a.http.Router().WithLogger(a.logger.GetLogger("router"))
	auth.RegisterAuthRoutes(r, a.controller)

	return nil
}

// Serve listens until ctx is done, then shuts the server down.
func (a *App) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.cfg.Server.Addr)
		errc <- a.http.Serve(a.cfg.Server.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	if err := a.http.Stop(a.cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	return a.db.Close()
}
