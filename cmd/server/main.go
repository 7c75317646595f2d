package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"auth-session-service/internal/app"
	"auth-session-service/internal/config"
	"auth-session-service/internal/domain"
	"auth-session-service/internal/http/handler"
	"auth-session-service/internal/http/middleware"
	"auth-session-service/internal/http/router"
	"auth-session-service/internal/observability"
	"auth-session-service/internal/repository"
	"auth-session-service/internal/security"
	"auth-session-service/internal/service"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "auth-session-service",
		Short: "Authentication session service: login, refresh rotation, logout",
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file to load before reading config")
	cmd.AddCommand(newServeCommand(&envFile))
	cmd.AddCommand(newPruneCommand(&envFile))
	return cmd
}

func newServeCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *envFile)
		},
	}
}

func newPruneCommand(envFile *string) *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete terminal session tokens older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, _, err := loadConfig(cmd.Context(), *envFile)
			if err != nil {
				return err
			}
			if retention > 0 {
				cfg.SessionPruneRetention = retention
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			store := repository.NewAccountStore(db)
			pruner := service.NewSessionPruner(store, cfg.SessionPruneRetention, 0, logger)
			removed, err := pruner.PruneOnce()
			if err != nil {
				return fmt.Errorf("prune session tokens: %w", err)
			}
			logger.Info("session tokens pruned", "removed", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "override SESSION_PRUNE_RETENTION")
	return cmd
}

func loadConfig(ctx context.Context, envFile string) (*config.Config, *slog.Logger, *sdklog.LoggerProvider, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, nil, nil, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, lp, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, lp, nil
}

func serve(parent context.Context, envFile string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, loggerProvider, err := loadConfig(ctx, envFile)
	if err != nil {
		return err
	}

	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	runtime.LoggerProvider = loggerProvider

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	store := repository.NewAccountStore(db)
	negCache, err := buildNegativeLookupCache(cfg)
	if err != nil {
		return err
	}
	authSvc := service.NewAuthService(store, negCache, cfg.NegativeLookupCacheTTL, cfg.SessionTokenTTL)
	userSvc := service.NewUserService(store)
	tokens := security.NewAccessTokenManager(cfg.JWTIssuer, cfg.JWTSecret, cfg.AccessTokenTTL)
	pruner := service.NewSessionPruner(store, cfg.SessionPruneRetention, cfg.SessionPruneInterval, logger)

	mux := router.NewRouter(router.Dependencies{
		AuthHandler: handler.NewAuthHandler(authSvc, tokens, handler.CookieSettings{
			Name:   cfg.RefreshCookieName,
			Path:   cfg.CookiePath,
			Secure: cfg.CookieSecure,
		}),
		UserHandler:    handler.NewUserHandler(userSvc),
		AccessTokens:   tokens,
		AuthLimiter:    middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow, "auth"),
		EnableOTelHTTP: cfg.OTELTracesEnabled,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	application := app.New(cfg, logger, server, runtime)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return pruner.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if obsErr := application.Observability.Shutdown(shutdownCtx); obsErr != nil {
		logger.Error("observability shutdown failed", "error", obsErr)
	}
	return err
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&domain.Account{}, &domain.SessionToken{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

func buildNegativeLookupCache(cfg *config.Config) (service.NegativeLookupCacheStore, error) {
	switch cfg.NegativeLookupCacheMode {
	case config.CacheModeRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		return service.NewRedisNegativeLookupCacheStore(client, ""), nil
	case config.CacheModeMemory:
		return service.NewInMemoryNegativeLookupCacheStore(), nil
	case config.CacheModeOff:
		return service.NewNoopNegativeLookupCacheStore(), nil
	default:
		return nil, fmt.Errorf("unknown negative lookup cache mode: %s", cfg.NegativeLookupCacheMode)
	}
}
