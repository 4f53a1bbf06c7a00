// Package main provides the pharmacy queue consumer. It reads finalized
// consultations from Redpanda and enqueues one pharmacy ticket per visit.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/api"
	"github.com/homeopms/go-smartrx/internal/config"
	"github.com/homeopms/go-smartrx/internal/infrastructure/postgres"
	"github.com/homeopms/go-smartrx/internal/infrastructure/redpanda"
	"github.com/homeopms/go-smartrx/internal/observability/logging"
	"github.com/homeopms/go-smartrx/internal/observability/metrics"
	"github.com/homeopms/go-smartrx/internal/observability/tracing"
	"github.com/homeopms/go-smartrx/internal/pharmacyqueue"
	"github.com/homeopms/go-smartrx/pkg/circuitbreaker"
	"github.com/homeopms/go-smartrx/pkg/idempotency"
	"github.com/homeopms/go-smartrx/pkg/workerpool"
)

const serviceName = "pharmacy-queue"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		panic(err)
	}
	logger = logger.With(zap.String("service", serviceName))
	defer logger.Sync()

	if cfg.StoreBackend != config.BackendPostgres || cfg.DatabaseURL == "" {
		logger.Fatal("pharmacy queue requires the postgres store backend and DATABASE_URL")
	}

	ctx := context.Background()

	tp, err := tracing.Init(ctx, tracing.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    serviceName,
		ServiceVersion: api.Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	inboxStore := idempotency.NewPostgresStore(pool, logger)
	inboxCfg := idempotency.DefaultInboxConfig()
	inboxStore.StartCleanup(inboxCfg.CleanupInterval)
	inbox := idempotency.NewInbox(inboxStore, inboxCfg, logger)

	breakers := circuitbreaker.NewManager(logger, func(name string, to circuitbreaker.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(to.Gauge())
	})
	breaker, err := breakers.GetOrCreate("pharmacy-queue-store", circuitbreaker.DefaultConfig("pharmacy-queue-store"))
	if err != nil {
		logger.Fatal("circuit breaker creation failed", zap.Error(err))
	}

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers
	producer, err := redpanda.NewProducer(producerCfg, m, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}

	poolCfg := workerpool.DefaultConfig()
	poolCfg.Workers = cfg.QueueWorkers
	svc, err := pharmacyqueue.New(pharmacyqueue.Config{
		Queue:      postgres.NewQueueStore(pool),
		Inbox:      inbox,
		Breaker:    breaker,
		Pool:       poolCfg,
		DeadLetter: producer,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("service creation failed", zap.Error(err))
	}
	svc.Start()

	consumerCfg := redpanda.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.KafkaBrokers
	consumer, err := redpanda.NewConsumer(consumerCfg, svc.HandleMessage, svc.DeadLetter, m, logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}
	consumer.Start()

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewOpsRouter(api.OpsConfig{
			ServiceName: serviceName,
			Gatherer:    reg,
			Breakers:    breakers,
			ReadyCheck: func(ctx context.Context) error {
				if !svc.Healthy() {
					return errors.New("worker pool unhealthy")
				}
				return pool.Ping(ctx)
			},
			Logger: logger,
		}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("ops server failed", zap.Error(err))
		}
	}()

	logger.Info("pharmacy queue started",
		zap.String("group", consumerCfg.GroupID),
		zap.Int("workers", poolCfg.Workers))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown failed", zap.Error(err))
	}

	// Consumer first so no new work reaches the pool
	if err := consumer.Stop(); err != nil {
		logger.Error("consumer stop failed", zap.Error(err))
	}
	if err := svc.Stop(); err != nil {
		logger.Error("service stop failed", zap.Error(err))
	}
	producer.Close()
	inboxStore.Stop()
	logger.Info("pharmacy queue stopped")
}
