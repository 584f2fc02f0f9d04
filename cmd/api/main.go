package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/media-auth-service/internal/api/http"
	"github.com/spec-kit/media-auth-service/internal/api/http/handlers"
	"github.com/spec-kit/media-auth-service/internal/auth"
	"github.com/spec-kit/media-auth-service/internal/config"
	"github.com/spec-kit/media-auth-service/internal/events"
	"github.com/spec-kit/media-auth-service/internal/observability"
	"github.com/spec-kit/media-auth-service/internal/persistence"
	"github.com/spec-kit/media-auth-service/internal/ratelimit"
	"github.com/spec-kit/media-auth-service/internal/repository"
	"github.com/spec-kit/media-auth-service/internal/service"
	"github.com/spec-kit/media-auth-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	keys, err := auth.NewKeySetFromConfig(cfg.Auth)
	if err != nil {
		logger.Fatal("failed to build key set", zap.Error(err))
	}
	issuer := auth.NewTokenIssuer(keys, cfg.Auth.AccessTokenTTLMinutes, cfg.Auth.RefreshTokenTTLDays)
	validator := auth.NewTokenValidator(keys)

	pool := pg.PoolHandle()
	accountRepo := repository.NewAccountRepository(pool)
	refreshRepo := repository.NewRefreshTokenRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	limiter := ratelimit.NewLoginLimiter(redis, cfg.Auth.LoginAttemptLimit, cfg.Auth.LoginAttemptWindow(), logger)

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		AccountRepo:      accountRepo,
		RefreshTokenRepo: refreshRepo,
		Issuer:           issuer,
		Limiter:          limiter,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	auditService := service.NewAuditService(dispatcher, metrics, logger)
	worker.StartAuditWorker(auditService)

	authMiddleware := auth.NewMiddleware(validator)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Accounts:       handlers.NewAccountHandler(authService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
