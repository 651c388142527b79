package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"taskstream/internal/eventlog"
	"taskstream/internal/platform/config"
	"taskstream/internal/platform/logger"
	"taskstream/internal/platform/metrics"
	"taskstream/internal/platform/postgres"
	"taskstream/internal/relay"
)

// main runs the outbox relay as a standalone process, for deployments that
// keep event fan-in to Kafka out of the API server's lifecycle.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL == "" {
		log.Fatal("the relay requires a postgres URL, the in-memory outbox dies with the server")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal("no kafka brokers configured")
	}

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		log.WithError(err).Fatal("postgres connection failed")
	}
	defer db.Close()

	producer, err := relay.NewKafkaProducer(ctx, cfg.Kafka)
	if err != nil {
		log.WithError(err).Fatal("kafka producer setup failed")
	}
	defer producer.Close()

	outboxRelay := relay.New(eventlog.NewPostgres(db), producer, log, metrics.New(), cfg.Kafka.PollInterval)
	log.WithField("topic", cfg.Kafka.Topic).Info("starting outbox relay")
	if err := outboxRelay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("relay exited with error")
	}
	log.Info("shutdown complete")
}
