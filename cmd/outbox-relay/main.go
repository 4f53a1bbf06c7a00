// Package main provides the outbox relay service entry point. It publishes
// committed consultation events from the outbox table to Redpanda.
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
)

const (
	serviceName = "outbox-relay"
	// processed rows are kept this long for auditing before cleanup
	processedRetention = 7 * 24 * time.Hour
)

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

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
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
	logger.Info("connected to database")

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers
	producer, err := redpanda.NewProducer(producerCfg, m, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()
	logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.KafkaBrokers))

	outboxCfg := postgres.DefaultOutboxConfig()
	outboxCfg.BatchSize = cfg.OutboxBatchSize
	outboxCfg.PollInterval = cfg.OutboxPollInterval
	outboxCfg.DeadLetterTopic = redpanda.TopicDeadLetter
	outbox := postgres.NewOutbox(pool, producer, outboxCfg, m, logger)

	outbox.Start()
	logger.Info("outbox relay started",
		zap.Int("batch_size", outboxCfg.BatchSize),
		zap.Duration("poll_interval", outboxCfg.PollInterval))

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	go cleanupLoop(cleanupCtx, outbox, logger)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewOpsRouter(api.OpsConfig{
			ServiceName: serviceName,
			Gatherer:    reg,
			ReadyCheck: func(ctx context.Context) error {
				if err := pool.Ping(ctx); err != nil {
					return err
				}
				return producer.Ping(ctx)
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

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown failed", zap.Error(err))
	}
	stopCleanup()
	outbox.Stop()
	logger.Info("outbox relay stopped")
}

func cleanupLoop(ctx context.Context, outbox *postgres.Outbox, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := outbox.CleanupProcessed(ctx, processedRetention)
			if err != nil {
				logger.Error("outbox cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("cleaned processed outbox entries", zap.Int64("count", n))
			}
		}
	}
}
