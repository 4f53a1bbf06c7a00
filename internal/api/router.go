// Package api assembles the doctor-panel HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/api/handlers"
	"github.com/homeopms/go-smartrx/internal/api/middleware"
	"github.com/homeopms/go-smartrx/internal/domain/consultation"
	"github.com/homeopms/go-smartrx/internal/domain/dispensing"
	"github.com/homeopms/go-smartrx/internal/observability/metrics"
	"github.com/homeopms/go-smartrx/pkg/circuitbreaker"
)

// Version is reported by /health
const Version = "1.0.0"

// RouterConfig wires the router to its collaborators
type RouterConfig struct {
	// ServiceName names the tracer and the /health payload
	ServiceName string
	// APIKeys maps API key to client ID; empty disables authentication
	APIKeys map[string]string
	Manager *consultation.Manager
	Queue   dispensing.Repository
	// Metrics may be nil; Gatherer serves /metrics when set
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// Breakers are reported on /ready. An open breaker marks the service
	// degraded, not unready: edits still succeed with persistence warnings.
	Breakers *circuitbreaker.Manager
	// ReadyCheck, when set, must pass for /ready to succeed (a database ping)
	ReadyCheck func(ctx context.Context) error
	Logger     *zap.Logger
}

// NewRouter builds the chi router: health endpoints at the root and the
// API-key guarded API under /api/v1
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "doctor-panel"
	}

	consultations := handlers.NewConsultationHandler(cfg.Manager, cfg.Metrics, logger)
	settings := handlers.NewSettingsHandler(cfg.Manager.Settings(), cfg.Metrics, logger)
	patterns := handlers.NewPatternHandler(cfg.Manager, cfg.Metrics, logger)
	pharmacy := handlers.NewPharmacyHandler(cfg.Queue, logger)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))

	r.Get("/health", healthHandler(cfg.ServiceName))
	r.Get("/ready", readyHandler(cfg.ReadyCheck, cfg.Breakers))
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKeys))
		r.Post("/parse", settings.Parse)
		r.Mount("/settings/smart-parsing", settings.Routes())
		r.Mount("/consultations", consultations.Routes())
		r.Mount("/clinicians/{clinicianID}", patterns.Routes())
		if cfg.Queue != nil {
			r.Mount("/pharmacy-queue", pharmacy.Routes())
		}
	})

	return r
}

type readiness struct {
	Status   string                        `json:"status"`
	Error    string                        `json:"error,omitempty"`
	Breakers []circuitbreaker.HealthStatus `json:"breakers,omitempty"`
}

func readyHandler(check func(ctx context.Context) error, breakers *circuitbreaker.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := readiness{Status: "ready"}
		code := http.StatusOK

		if check != nil {
			if err := check(r.Context()); err != nil {
				resp.Status, resp.Error = "not ready", err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		if breakers != nil {
			resp.Breakers = breakers.GetHealthStatus()
			for _, b := range resp.Breakers {
				if !b.Healthy && code == http.StatusOK {
					resp.Status = "degraded"
				}
			}
		}
		writeJSON(w, code, resp)
	}
}

func healthHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": service,
			"version": Version,
		})
	}
}

// OpsConfig configures the operational endpoints of the background services
type OpsConfig struct {
	ServiceName string
	Gatherer    prometheus.Gatherer
	Breakers    *circuitbreaker.Manager
	ReadyCheck  func(ctx context.Context) error
	Logger      *zap.Logger
}

// NewOpsRouter serves /health, /ready and /metrics for services without an API
func NewOpsRouter(cfg OpsConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Get("/health", healthHandler(cfg.ServiceName))
	r.Get("/ready", readyHandler(cfg.ReadyCheck, cfg.Breakers))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	return r
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
