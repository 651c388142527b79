package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"taskstream/internal/broadcast"
	"taskstream/internal/engine"
	"taskstream/internal/eventlog"
	jwttoken "taskstream/internal/jwt_token"
	"taskstream/internal/platform/config"
	"taskstream/internal/platform/httpserver"
	"taskstream/internal/platform/logger"
	"taskstream/internal/platform/metrics"
	"taskstream/internal/platform/postgres"
	platformredis "taskstream/internal/platform/redis"
	"taskstream/internal/projection"
	"taskstream/internal/relay"
	"taskstream/internal/subscription"
	httptransport "taskstream/internal/transport/http"
)

// main wires the engine's dependencies and owns the process lifecycle.
// Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Event log: postgres when configured, in-memory otherwise.
	var store eventlog.Store
	var history projection.HistoryReader
	var outbox eventlog.Outbox
	checks := []httptransport.HealthChecker{}

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		log.WithError(err).Fatal("postgres connection failed")
	}
	if db != nil {
		defer db.Close()
		pg := eventlog.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.WithError(err).Fatal("event log schema migration failed")
		}
		store = pg
		history = pg
		outbox = pg
		checks = append(checks, httptransport.HealthChecker{
			Name:  "postgres",
			Check: func() error { return db.PingContext(context.Background()) },
		})
		log.Info("event log backed by postgres")
	} else {
		mem := eventlog.NewInMemoryStore()
		store = mem
		history = mem
		outbox = mem
		log.Warn("no postgres URL configured, events are held in memory only")
	}

	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.WithError(err).Fatal("redis connection failed")
	}

	board := projection.NewBoard()
	if err := board.Rebuild(ctx, history); err != nil {
		log.WithError(err).Fatal("projection rebuild failed")
	}

	var views *projection.Cache
	if rdb != nil {
		defer rdb.Close()
		views = projection.NewCache(board, rdb.Client, log)
		checks = append(checks, httptransport.HealthChecker{
			Name:  "redis",
			Check: func() error { return rdb.Health(context.Background()) },
		})
		log.Info("projection cache backed by redis")
	} else {
		views = projection.NewCache(board, nil, log)
	}

	registry := subscription.NewRegistry(m)
	dispatcher := broadcast.NewDispatcher(registry, board, log, m, cfg.Engine.SubscriberBuffer)
	defer dispatcher.Close()

	// The cache (and the board under it) applies events before the
	// dispatcher fans out, so route resolution always sees current views.
	processor := engine.NewProcessor(store, log, m,
		[]engine.Publisher{views, dispatcher},
		engine.WithOpenTaskCounter(board),
		engine.WithRetry(cfg.Engine.AppendRetries, cfg.Engine.RetryBaseDelay))

	tokens := jwttoken.NewService(cfg.Auth.JWTSigningKey, "taskstream")
	handler := httptransport.NewHandler(processor, store, registry, dispatcher, views, tokens, log)
	router := httptransport.NewRouter(handler, log, views.Breaker(), checks...)
	srv := httpserver.New(cfg.Server.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.WithField("addr", cfg.Server.Addr).Info("starting taskstream server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := relay.NewKafkaProducer(ctx, cfg.Kafka)
		if err != nil {
			log.WithError(err).Fatal("kafka producer setup failed")
		}
		defer producer.Close()
		outboxRelay := relay.New(outbox, producer, log, m, cfg.Kafka.PollInterval)
		group.Go(func() error {
			log.WithField("topic", cfg.Kafka.Topic).Info("starting outbox relay")
			return outboxRelay.Run(groupCtx)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("server exited with error")
	}
	log.Info("shutdown complete")
}
