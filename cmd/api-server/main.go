package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/scheduling/internal/api"
	"github.com/carebridge/scheduling/internal/config"
	"github.com/carebridge/scheduling/internal/db"
	redisclient "github.com/carebridge/scheduling/internal/redis"
	"github.com/carebridge/scheduling/internal/scheduling"
)

const version = "0.3.0"

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api-server").Logger()
	logger.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	var locker redisclient.Locker = redisclient.NoopLocker{}
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, booking runs without the slot lock")
		rdb = nil
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		logger.Info().Msg("connected to Redis")
	}

	repo := scheduling.NewPgRepository(pgPool)
	svc := scheduling.NewService(repo, locker, cfg, logger)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("api-server stopped")
}
