package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/api/middleware"
	"github.com/homeopms/go-smartrx/internal/domain/smartparse"
	"github.com/homeopms/go-smartrx/internal/observability/metrics"
)

// SettingsHandler serves the smart-parsing rule tables and one-off parsing
type SettingsHandler struct {
	settings *smartparse.Settings
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewSettingsHandler creates a new handler. m may be nil.
func NewSettingsHandler(settings *smartparse.Settings, m *metrics.Metrics, logger *zap.Logger) *SettingsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsHandler{settings: settings, metrics: m, logger: logger}
}

// Routes returns the settings routes, mounted at /settings/smart-parsing
func (h *SettingsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	r.Put("/", h.Put)
	r.Post("/reset", h.Reset)
	return r
}

// Get handles GET /settings/smart-parsing
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.Get(r.Context())
	if err != nil {
		fail(w, h.logger, "failed to load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Put handles PUT /settings/smart-parsing. Sessions already open keep the
// tables they started with.
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var cfg smartparse.Config
	if !decode(w, r, &cfg) {
		return
	}
	if err := h.settings.Save(r.Context(), &cfg); err != nil {
		fail(w, h.logger, "failed to save settings", err)
		return
	}
	h.logger.Info("smart parsing settings saved",
		zap.String("client_id", middleware.GetClientID(r.Context())),
		zap.Int("quantities", len(cfg.Quantities)),
		zap.Int("dose_forms", len(cfg.DoseForms)),
		zap.Int("dose_patterns", len(cfg.DosePatterns)),
	)
	writeJSON(w, http.StatusOK, cfg.WithDefaults())
}

// Reset handles POST /settings/smart-parsing/reset
func (h *SettingsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.Reset(r.Context())
	if err != nil {
		fail(w, h.logger, "failed to reset settings", err)
		return
	}
	h.logger.Info("smart parsing settings reset",
		zap.String("client_id", middleware.GetClientID(r.Context())))
	writeJSON(w, http.StatusOK, cfg)
}

// ParseRequest is the body of POST /parse
type ParseRequest struct {
	Text string `json:"text"`
}

// ParseResponse is the parsed line plus the categories the text matched
type ParseResponse struct {
	smartparse.Line
	Matched []string `json:"matched"`
}

// Parse handles POST /parse using the saved rule tables
func (h *SettingsHandler) Parse(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("settings-handler").Start(r.Context(), "parse_line")
	defer span.End()

	var req ParseRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		jsonError(w, "text is required", http.StatusBadRequest)
		return
	}

	cfg, err := h.settings.Get(ctx)
	if err != nil {
		fail(w, h.logger, "failed to load settings", err)
		return
	}

	start := time.Now()
	line := smartparse.ParseLine(req.Text, cfg)
	observeParse(h.metrics, line, time.Since(start))
	span.SetAttributes(attribute.StringSlice("matched", line.Categories()))

	writeJSON(w, http.StatusOK, ParseResponse{Line: line, Matched: nonNil(line.Categories())})
}

func observeParse(m *metrics.Metrics, line smartparse.Line, d time.Duration) {
	if m == nil {
		return
	}
	m.SmartEntries.Inc()
	m.SmartEntryDuration.Observe(d.Seconds())
	for _, c := range line.Categories() {
		m.RuleMatches.WithLabelValues(c).Inc()
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
