// Command server runs the identity backend HTTP API: Keycloak-backed
// authentication, just-in-time user reconciliation, profile and image
// management, and per-client rate limiting.
//
// Configuration is resolved from struct tag defaults, an optional YAML
// file named by CONFIG_FILE, and environment variables, in that order of
// precedence.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benseddik/idp-backend/internal/httpapi"
	"github.com/benseddik/idp-backend/internal/images"
	"github.com/benseddik/idp-backend/internal/keycloak"
	"github.com/benseddik/idp-backend/internal/user"
	"github.com/benseddik/idp-backend/pkg/auth"
	"github.com/benseddik/idp-backend/pkg/clients/minio"
	"github.com/benseddik/idp-backend/pkg/clients/postgres"
	"github.com/benseddik/idp-backend/pkg/clients/redis"
	"github.com/benseddik/idp-backend/pkg/config"
	"github.com/benseddik/idp-backend/pkg/ratelimit"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg appConfig
	if err := config.New().WithFile(os.Getenv("CONFIG_FILE")).Load(&cfg); err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	// Dependencies.
	db, err := postgres.NewClient(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to postgres")

	store, err := minio.NewClient(ctx, cfg.Minio)
	if err != nil {
		return err
	}
	logger.Info("connected to object storage", "bucket", store.Bucket())

	checks := []httpapi.NamedChecker{
		{Name: "postgres", Checker: db},
		{Name: "minio", Checker: store},
	}

	limiter, redisClient, err := buildLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks = append(checks, httpapi.NamedChecker{Name: "redis", Checker: redisClient})
	}

	idp, err := keycloak.NewClient(cfg.Keycloak)
	if err != nil {
		return err
	}

	validator, err := auth.NewKeycloakValidator(cfg.Auth)
	if err != nil {
		return err
	}

	// Services and HTTP surface.
	repo := user.NewRepository(db)
	users := user.NewService(repo, idp, logger)
	imageSvc := images.NewService(store, logger)

	handler := httpapi.NewRouter(httpapi.RouterConfig{
		Handlers:       httpapi.NewHandlers(users, imageSvc, checks, logger),
		Validator:      validator,
		ClientID:       cfg.Auth.ClientID,
		Limiter:        limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if serveErr := server.ListenAndServe(); !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// buildLimiter constructs the configured rate limiter. The Redis client
// is returned alongside so the caller can close it and register its
// health check; it is nil for the memory backend.
func buildLimiter(ctx context.Context, cfg appConfig, logger *slog.Logger) (ratelimit.Limiter, *redis.Client, error) {
	if !cfg.RateLimit.Enabled {
		logger.Warn("rate limiting is disabled")
		return nil, nil, nil
	}

	if cfg.RateLimit.Backend == "redis" {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		limiter, err := ratelimit.NewRedisLimiter(client, cfg.RateLimit.Limits)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info("rate limiting with shared redis backend")
		return limiter, client, nil
	}

	limiter, err := ratelimit.NewMemoryLimiter(cfg.RateLimit.Limits)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("rate limiting with per-instance memory backend")
	return limiter, nil, nil
}
