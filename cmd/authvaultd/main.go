// Command authvaultd serves the credential and session lifecycle API
// over Postgres and Redis.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	authvault "github.com/mkhalaf/authvault"
	"github.com/mkhalaf/authvault/cache"
	"github.com/mkhalaf/authvault/httpapi"
	"github.com/mkhalaf/authvault/internal/rate"
	"github.com/mkhalaf/authvault/postgres"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		zap.NewExample().Fatal("configuration invalid", zap.Error(err))
	}

	logger := newLogger(cfg.Log.Level)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("authvaultd exited", zap.Error(err))
	}
}

func run(cfg *serviceConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Redis-dependent paths degrade or fail closed per the engine's
		// rules; startup continues so the service can ride out a restart.
		logger.Warn("redis unreachable at startup", zap.Error(err))
	}

	gate := rate.New(redisClient, rate.Config{
		Window:       cfg.RateLimit.Window,
		DefaultLimit: cfg.RateLimit.General,
		Limits: map[string]int{
			authvault.ScopeLogin: cfg.RateLimit.AuthFlows,
			authvault.ScopeReset: cfg.RateLimit.AuthFlows,
			authvault.ScopeOTP:   cfg.RateLimit.AuthFlows,
		},
	})

	engine, err := authvault.New(authvault.Config{
		Token: authvault.TokenConfig{
			AccessKey:  []byte(cfg.Token.AccessKey),
			RefreshKey: []byte(cfg.Token.RefreshKey),
			Issuer:     cfg.Token.Issuer,
		},
		Session: authvault.SessionConfig{
			AccessTTL:  cfg.Session.AccessTTL,
			RefreshTTL: cfg.Session.RefreshTTL,
		},
		AllowDegradedVerify: cfg.AllowDegradedVerify,
	},
		postgres.New(pool),
		cache.NewRedis(redisClient, ""),
		authvault.WithLogger(logger),
		authvault.WithRateGate(gate),
	)
	if err != nil {
		return err
	}

	api := httpapi.New(engine, httpapi.WithLogger(logger))
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
