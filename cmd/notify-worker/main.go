package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/scheduling/internal/config"
	"github.com/carebridge/scheduling/internal/db"
	"github.com/carebridge/scheduling/internal/notify"
	"github.com/carebridge/scheduling/internal/scheduling"
)

const drainBatchSize = 100

// notify-worker drains the booking event outbox to Kafka. Booking outcomes
// never wait on it: a crashed or lagging worker just delays notifications.
func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "notify-worker").Logger()
	logger.Info().Msg("notify-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if cfg.KafkaBrokers == "" {
		logger.Fatal().Msg("KAFKA_BROKERS is required for the notify worker")
	}

	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Str("topic", cfg.KafkaTopic).Msg("configuration loaded")

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

	repo := scheduling.NewPgRepository(pgPool)
	publisher := notify.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing kafka writer")
		}
	}()

	// Run once at startup
	drainOnce(rootCtx, repo, publisher, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping notify worker")
			return
		case <-ticker.C:
			drainOnce(rootCtx, repo, publisher, logger)
		}
	}
}

func drainOnce(ctx context.Context, repo *scheduling.PgRepository, publisher *notify.Publisher, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	events, err := repo.FindUnpublishedEvents(runCtx, drainBatchSize)
	if err != nil {
		logger.Error().Err(err).Msg("find unpublished events")
		return
	}

	for _, ev := range events {
		key := ""
		if ev.AppointmentID != nil {
			key = ev.AppointmentID.String()
		}
		if err := publisher.Publish(runCtx, ev.EventType, key, ev.Payload); err != nil {
			// Leave the row unpublished; the next drain retries it.
			logger.Error().Err(err).Int64("event_id", ev.ID).Msg("publish event")
			continue
		}
		if err := repo.MarkEventPublished(runCtx, ev.ID); err != nil {
			logger.Error().Err(err).Int64("event_id", ev.ID).Msg("mark event published")
		}
	}

	if len(events) > 0 {
		logger.Info().Int("events", len(events)).Msg("drained outbox")
	}
}
