package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimitrije/reclama-api/internal/config"
	"github.com/dimitrije/reclama-api/internal/database"
	"github.com/dimitrije/reclama-api/internal/handlers"
	"github.com/dimitrije/reclama-api/internal/identity"
	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/metrics"
	"github.com/dimitrije/reclama-api/internal/oauth"
	"github.com/dimitrije/reclama-api/internal/rolecache"
	"github.com/dimitrije/reclama-api/internal/server"
	"github.com/dimitrije/reclama-api/internal/services"
	"github.com/dimitrije/reclama-api/internal/sse"
	"github.com/dimitrije/reclama-api/internal/storage"
	"github.com/dimitrije/reclama-api/internal/web"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New("reclama-api", cfg.LogLevel)

	flush, err := logging.InitSentry(log, cfg.SentryDSN, cfg.Env)
	if err != nil {
		log.WithError(err).Warn("sentry disabled")
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	m := metrics.New("reclama")

	store, uploads, err := newObjectStore(cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("failed to set up image storage")
	}

	cache, closeCache := newRoleCache(ctx, cfg, log)
	defer closeCache()

	userService := services.NewUserService(db)
	tokenService := services.NewTokenService(db)
	profileService := services.NewProfileService(db)
	roleService := services.NewRoleService(db, log)
	emailService := services.NewEmailService(cfg.SMTP)
	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)

	var providers []oauth.Provider
	if cfg.Google.ClientID != "" {
		providers = append(providers, oauth.NewGoogleProvider(cfg.Google))
	}

	authService := services.NewAuthService(userService, profileService, tokenService, jwtService, emailService, services.AuthOptions{
		BaseURL:   cfg.BaseURL,
		Providers: providers,
		Log:       log,
	})
	reportService := services.NewReportService(db, store, profileService, services.ReportOptions{
		StrictTransitions: cfg.StrictStatusTransitions,
		Log:               log,
		Metrics:           m,
	})

	hub := sse.NewHub()
	go hub.Run()
	defer hub.Stop()

	gate := identity.NewGate(authService, profileService, roleService, identity.Options{
		Cache:   cache,
		Sink:    hub,
		Log:     log,
		Metrics: m,
	})
	if err := gate.Start(); err != nil {
		log.WithError(err).Fatal("failed to start identity gate")
	}
	defer func() { _ = gate.Close() }()

	go authService.RunMaintenance(ctx, time.Hour)

	handler := server.New(server.Deps{
		Gate:    gate,
		Auth:    authService,
		Reports: reportService,
		Roles:   roleService,
		Hub:     hub,
		Views:   web.MustNew(),
		Cookies: handlers.CookieConfig{
			Secure:     cfg.CookieSecure,
			RefreshTTL: cfg.JWTRefreshExpiry,
		},
		PostLoginURL: cfg.PostLoginURL,
		Production:   cfg.IsProduction(),
		Uploads:      uploads,
		Metrics:      m,
		Log:          log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

// newObjectStore returns the configured image store and, for local storage,
// the handler that serves the stored files.
func newObjectStore(cfg config.StorageConfig) (storage.ObjectStore, http.Handler, error) {
	switch cfg.Driver {
	case "ftp":
		return storage.NewFTPStore(cfg.FTPAddr, cfg.FTPUser, cfg.FTPPassword, cfg.FTPBaseDir, cfg.PublicURL), nil, nil
	case "local", "":
		store, err := storage.NewLocalStore(cfg.LocalDir, cfg.PublicURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Handler(), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// newRoleCache uses Redis when REDIS_URL is set and falls back to an
// in-process cache when it is unset or unreachable.
func newRoleCache(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (rolecache.Cache, func()) {
	if cfg.RedisURL != "" {
		client, err := rolecache.Connect(ctx, cfg.RedisURL)
		if err == nil {
			log.Info("role cache backed by redis")
			return rolecache.NewRedis(client, cfg.RoleCacheTTL), func() { _ = client.Close() }
		}
		log.WithError(err).Warn("redis unavailable, using in-memory role cache")
	}
	mem := rolecache.NewMemory(cfg.RoleCacheTTL)
	return mem, mem.Close
}
