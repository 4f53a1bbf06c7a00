package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/domain/consultation"
	"github.com/homeopms/go-smartrx/internal/domain/patternmemory"
	"github.com/homeopms/go-smartrx/internal/observability/metrics"
)

// PatternHandler reads a clinician's pattern memory and recently used medicines
type PatternHandler struct {
	manager *consultation.Manager
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewPatternHandler creates a new handler. m may be nil.
func NewPatternHandler(manager *consultation.Manager, m *metrics.Metrics, logger *zap.Logger) *PatternHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatternHandler{manager: manager, metrics: m, logger: logger}
}

// Routes returns the handler routes, mounted at /clinicians/{clinicianID}
func (h *PatternHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/patterns", h.List)
	r.Get("/patterns/{medicine}", h.Lookup)
	r.Get("/used-medicines", h.Used)
	return r
}

// Lookup handles GET /clinicians/{clinicianID}/patterns/{medicine}
func (h *PatternHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	mem, ok := h.memory(w, r)
	if !ok {
		return
	}
	medicine := chi.URLParam(r, "medicine")
	if unescaped, err := url.PathUnescape(medicine); err == nil {
		medicine = unescaped
	}
	p, found := mem.Lookup(medicine)
	if h.metrics != nil {
		result := "miss"
		if found {
			result = "hit"
		}
		h.metrics.PatternLookups.WithLabelValues(result).Inc()
	}
	if !found {
		jsonError(w, "no pattern for "+medicine, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// List handles GET /clinicians/{clinicianID}/patterns
func (h *PatternHandler) List(w http.ResponseWriter, r *http.Request) {
	mem, ok := h.memory(w, r)
	if !ok {
		return
	}
	patterns := mem.Patterns()
	if patterns == nil {
		patterns = []patternmemory.Pattern{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"patterns": patterns})
}

// Used handles GET /clinicians/{clinicianID}/used-medicines, most recent first
func (h *PatternHandler) Used(w http.ResponseWriter, r *http.Request) {
	idx, err := h.manager.Index(r.Context(), chi.URLParam(r, "clinicianID"))
	if err != nil {
		fail(w, h.logger, "failed to load used medicines", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"used_medicines": nonNil(idx.Used())})
}

func (h *PatternHandler) memory(w http.ResponseWriter, r *http.Request) (*patternmemory.Memory, bool) {
	mem, err := h.manager.Memory(r.Context(), chi.URLParam(r, "clinicianID"))
	if err != nil {
		fail(w, h.logger, "failed to load pattern memory", err)
		return nil, false
	}
	return mem, true
}
