package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/api"
	"github.com/homeopms/go-smartrx/internal/config"
	"github.com/homeopms/go-smartrx/internal/domain/consultation"
	"github.com/homeopms/go-smartrx/internal/domain/dispensing"
	"github.com/homeopms/go-smartrx/internal/domain/patternmemory"
	"github.com/homeopms/go-smartrx/internal/domain/recall"
	"github.com/homeopms/go-smartrx/internal/infrastructure/guarded"
	"github.com/homeopms/go-smartrx/internal/infrastructure/memstore"
	"github.com/homeopms/go-smartrx/internal/infrastructure/postgres"
	"github.com/homeopms/go-smartrx/internal/infrastructure/redisstore"
	"github.com/homeopms/go-smartrx/internal/infrastructure/redpanda"
	"github.com/homeopms/go-smartrx/internal/observability/metrics"
	"github.com/homeopms/go-smartrx/internal/observability/tracing"
	"github.com/homeopms/go-smartrx/pkg/circuitbreaker"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the doctor-panel API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

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
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tp.Shutdown(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	breakers := circuitbreaker.NewManager(logger, func(name string, to circuitbreaker.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(to.Gauge())
	})

	b, err := openBackends(ctx, cfg, breakers, logger)
	if err != nil {
		return err
	}
	defer b.close()

	manager := consultation.NewManager(b.deps, logger)

	expiryCtx, stopExpiry := context.WithCancel(ctx)
	defer stopExpiry()
	go manager.RunExpiry(expiryCtx, time.Minute, cfg.SessionIdleTimeout, func(int) {
		m.ActiveSessions.Set(float64(manager.Active()))
	})

	handler := api.NewRouter(api.RouterConfig{
		ServiceName: serviceName,
		APIKeys:     cfg.APIKeys,
		Manager:     manager,
		Queue:       b.queue,
		Metrics:     m,
		Gatherer:    reg,
		Breakers:    breakers,
		ReadyCheck:  b.ready,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting doctor-panel API",
		zap.String("port", cfg.Port),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("recall_backend", cfg.RecallBackend),
	)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// backends are the stores behind the consultation manager
type backends struct {
	deps    consultation.Dependencies
	queue   dispensing.Repository
	ready   func(ctx context.Context) error
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends builds the stores selected by STORE_BACKEND and RECALL_BACKEND.
// Pattern memory and the used-medicines list go through circuit breakers so
// a failing store degrades to persistence warnings instead of slow edits.
func openBackends(ctx context.Context, cfg *config.Config, breakers *circuitbreaker.Manager, logger *zap.Logger) (*backends, error) {
	b := &backends{}

	var (
		patterns patternmemory.Store
		used     recall.Store
	)

	switch cfg.StoreBackend {
	case config.BackendMemory:
		store := memstore.New()
		b.deps = consultation.Dependencies{
			Config:       store,
			Combinations: store,
			Visits:       store,
		}
		b.queue = store
		patterns, used = store, store
		logger.Warn("using in-memory stores; nothing survives a restart")

	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		b.ready = pool.Ping
		logger.Info("connected to database")

		blobs := postgres.NewBlobStore(pool)
		b.deps = consultation.Dependencies{
			Config:       postgres.NewSettingsStore(blobs),
			Combinations: postgres.NewCombinationStore(pool),
			Visits:       postgres.NewVisitStore(pool, redpanda.TopicConsultationFinalized, logger),
		}
		b.queue = postgres.NewQueueStore(pool)
		patterns = postgres.NewPatternStore(blobs)
		used = postgres.NewUsedMedicineStore(blobs)
	}

	switch cfg.RecallBackend {
	case config.BackendRedis:
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, func() { client.Close() })
		used = redisstore.NewUsedMedicineStore(client)
		logger.Info("used medicines kept in redis")
	case config.BackendMemory:
		used = memstore.New()
	}

	patternBreaker, err := breakers.GetOrCreate("pattern-store", circuitbreaker.DefaultConfig("pattern-store"))
	if err != nil {
		b.close()
		return nil, err
	}
	usedBreaker, err := breakers.GetOrCreate("used-medicine-store", circuitbreaker.DefaultConfig("used-medicine-store"))
	if err != nil {
		b.close()
		return nil, err
	}
	b.deps.Patterns = guarded.NewPatternStore(patterns, patternBreaker, cfg.StoreBreakerTimeout)
	b.deps.Recall = guarded.NewUsedMedicineStore(used, usedBreaker, cfg.StoreBreakerTimeout)

	return b, nil
}
