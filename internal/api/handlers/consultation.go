package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/api/middleware"
	"github.com/homeopms/go-smartrx/internal/domain/consultation"
	"github.com/homeopms/go-smartrx/internal/domain/recall"
	"github.com/homeopms/go-smartrx/internal/observability/metrics"
)

// ConsultationHandler drives consultation sessions: the prescription sheet,
// smart entry, autocomplete and finalization
type ConsultationHandler struct {
	manager *consultation.Manager
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewConsultationHandler creates a new handler. m may be nil.
func NewConsultationHandler(manager *consultation.Manager, m *metrics.Metrics, logger *zap.Logger) *ConsultationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsultationHandler{manager: manager, metrics: m, logger: logger}
}

// Routes returns the handler routes
func (h *ConsultationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Start)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Discard)
		r.Post("/rows", h.AddRow)
		r.Patch("/rows/{index}", h.UpdateRow)
		r.Delete("/rows/{index}", h.RemoveRow)
		r.Post("/rows/{index}/move", h.MoveRow)
		r.Post("/rows/{index}/smart-entry", h.SmartEntry)
		r.Post("/rows/{index}/select", h.Select)
		r.Post("/rows/{index}/combination", h.InsertCombination)
		r.Delete("/rows/{index}/combination", h.RemoveCombination)
		r.Post("/keys", h.Key)
		r.Get("/suggestions", h.Suggestions)
		r.Post("/end", h.End)
	})
	return r
}

// SessionView is the client's view of an open consultation
type SessionView struct {
	ID            string               `json:"id"`
	ClinicianID   string               `json:"clinician_id"`
	PatientID     string               `json:"patient_id"`
	AppointmentID string               `json:"appointment_id,omitempty"`
	StartedAt     time.Time            `json:"started_at"`
	Ended         bool                 `json:"ended"`
	Columns       []consultation.Field `json:"columns"`
	Rows          []consultation.Row   `json:"rows"`
}

func viewOf(s *consultation.Session) SessionView {
	return SessionView{
		ID:            s.ID,
		ClinicianID:   s.ClinicianID,
		PatientID:     s.PatientID,
		AppointmentID: s.AppointmentID,
		StartedAt:     s.StartedAt,
		Ended:         s.Ended(),
		Columns:       consultation.Columns,
		Rows:          append([]consultation.Row{}, s.Rows()...),
	}
}

// Start handles POST /consultations. The new session has one empty row.
func (h *ConsultationHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("consultation-handler").Start(r.Context(), "start_consultation")
	defer span.End()

	var req consultation.StartRequest
	if !decode(w, r, &req) {
		return
	}

	s, err := h.manager.Start(ctx, req)
	if err != nil {
		fail(w, h.logger, "failed to start consultation", err)
		return
	}
	if _, err := s.AddRow(); err != nil {
		fail(w, h.logger, "failed to start consultation", err)
		return
	}
	span.SetAttributes(attribute.String("session_id", s.ID))
	h.trackActive()

	h.logger.Info("consultation opened",
		zap.String("session_id", s.ID),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)
	writeJSON(w, http.StatusCreated, viewOf(s))
}

// Get handles GET /consultations/{id}
func (h *ConsultationHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s))
}

// AddRow handles POST /consultations/{id}/rows
func (h *ConsultationHandler) AddRow(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	row, err := s.AddRow()
	if err != nil {
		fail(w, h.logger, "failed to add row", err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// UpdateRowRequest sets one field of a row
type UpdateRowRequest struct {
	Field consultation.Field `json:"field"`
	Value string             `json:"value"`
}

// UpdateRow handles PATCH /consultations/{id}/rows/{index}
func (h *ConsultationHandler) UpdateRow(w http.ResponseWriter, r *http.Request) {
	s, i, ok := h.sessionRow(w, r)
	if !ok {
		return
	}
	var req UpdateRowRequest
	if !decode(w, r, &req) {
		return
	}
	row, err := s.UpdateField(i, req.Field, req.Value)
	if err != nil {
		fail(w, h.logger, "failed to update row", err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// RemoveRow handles DELETE /consultations/{id}/rows/{index}
func (h *ConsultationHandler) RemoveRow(w http.ResponseWriter, r *http.Request) {
	s, i, ok := h.sessionRow(w, r)
	if !ok {
		return
	}
	if err := s.RemoveRow(i); err != nil {
		fail(w, h.logger, "failed to remove row", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": s.Rows()})
}

// MoveRowRequest names the direction to move a row
type MoveRowRequest struct {
	Direction consultation.Direction `json:"direction"`
}

// MoveRow handles POST /consultations/{id}/rows/{index}/move
func (h *ConsultationHandler) MoveRow(w http.ResponseWriter, r *http.Request) {
	s, i, ok := h.sessionRow(w, r)
	if !ok {
		return
	}
	var req MoveRowRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.MoveRow(i, req.Direction); err != nil {
		fail(w, h.logger, "failed to move row", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": s.Rows()})
}

// SmartEntryRequest is a typed shorthand line
type SmartEntryRequest struct {
	Text string `json:"text"`
}

// OutcomeResponse always carries a warnings array
type OutcomeResponse struct {
	consultation.Outcome
	Warnings []consultation.Warning `json:"warnings"`
}

// SmartEntry handles POST /consultations/{id}/rows/{index}/smart-entry
func (h *ConsultationHandler) SmartEntry(w http.ResponseWriter, r *http.Request) {
	s, i, ok := h.sessionRow(w, r)
	if !ok {
		return
	}
	ctx, span := otel.Tracer("consultation-handler").Start(r.Context(), "smart_entry")
	defer span.End()

	var req SmartEntryRequest
	if !decode(w, r, &req) {
		return
	}

	start := time.Now()
	out, err := s.SmartEntry(ctx, i, req.Text)
	if err != nil {
		fail(w, h.logger, "smart entry failed", err)
		return
	}
	h.observeOutcome(out.Parsed != nil, out, time.Since(start))
	span.SetAttributes(
		attribute.Bool("pattern_applied", out.PatternApplied),
		attribute.Int("warnings", len(out.Warnings)),
	)
	writeJSON(w, http.StatusOK, OutcomeResponse{Outcome: out, Warnings: warningsOrEmpty(out.Warnings)})
}

// SelectRequest picks an autocomplete suggestion
type SelectRequest struct {
	Name string `json:"name"`
}

// Select handles POST /consultations/{id}/rows/{index}/select
func (h *ConsultationHandler) Select(w http.ResponseWriter, r *http.Request) {
	s, i, ok := h.sessionRow(w, r)
	if !ok {
		return
	}
	var req SelectRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := s.SelectSuggestion(r.Context(), i, req.Name)
	if err != nil {
		fail(w, h.logger, "failed to select suggestion", err)
		return
	}
	h.observeOutcome(false, out, 0)
	writeJSON(w, http.StatusOK, OutcomeResponse{Outcome: out, Warnings: warningsOrEmpty(out.Warnings)})
}

// CombinationRequest inserts a saved combination, or saves a new one when
// Content is given and no combination with that name exists
type CombinationRequest struct {
	Name    string `json:"name"`
	Content string `json:"content,omitempty"`
}

// InsertCombination handles POST /consultations/{id}/rows/{index}/combination
func (h *ConsultationHandler) InsertCombination(w http.ResponseWriter, r *http.Request) {
	s, i, ok := h.sessionRow(w, r)
	if !ok {
		return
	}
	var req CombinationRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		row consultation.Row
		err error
	)
	if strings.TrimSpace(req.Content) == "" {
		row, err = s.InsertCombination(i, req.Name)
	} else {
		row, err = s.SaveNewCombination(r.Context(), i, req.Name, req.Content)
	}
	if err != nil {
		fail(w, h.logger, "failed to insert combination", err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// RemoveCombination handles DELETE /consultations/{id}/rows/{index}/combination
func (h *ConsultationHandler) RemoveCombination(w http.ResponseWriter, r *http.Request) {
	s, i, ok := h.sessionRow(w, r)
	if !ok {
		return
	}
	row, err := s.RemoveCombination(i)
	if err != nil {
		fail(w, h.logger, "failed to remove combination", err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// KeyResponse always carries a warnings array
type KeyResponse struct {
	consultation.KeyOutcome
	Warnings []consultation.Warning `json:"warnings"`
}

// Key handles POST /consultations/{id}/keys
func (h *ConsultationHandler) Key(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var ev consultation.KeyEvent
	if !decode(w, r, &ev) {
		return
	}

	start := time.Now()
	out, err := s.HandleKey(r.Context(), ev)
	if err != nil {
		fail(w, h.logger, "failed to handle key", err)
		return
	}
	if out.Transition.Action == consultation.ActionSmartEntry && out.Row != nil {
		h.observeOutcome(true, consultation.Outcome{Row: *out.Row, Parsed: out.Parsed, Warnings: out.Warnings}, time.Since(start))
	} else {
		countWarnings(h.metrics, out.Warnings)
	}
	writeJSON(w, http.StatusOK, KeyResponse{KeyOutcome: out, Warnings: warningsOrEmpty(out.Warnings)})
}

// Suggestions handles GET /consultations/{id}/suggestions?q=arn&limit=10
func (h *ConsultationHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > recall.MaxSuggestLimit {
			jsonError(w, fmt.Sprintf("limit must be an integer between 1 and %d", recall.MaxSuggestLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	suggestions := s.Suggest(r.URL.Query().Get("q"), limit)
	if h.metrics != nil {
		h.metrics.SuggestionsServed.Inc()
	}
	writeJSON(w, http.StatusOK, map[string][]string{"suggestions": nonNil(suggestions)})
}

// EndResponse reports the recorded visit
type EndResponse struct {
	Visit    *consultation.FinalizedConsultation `json:"visit"`
	Warnings []consultation.Warning              `json:"warnings"`
}

// End handles POST /consultations/{id}/end. On success the session is
// forgotten; on a recording failure it stays open so the client can retry.
func (h *ConsultationHandler) End(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx, span := otel.Tracer("consultation-handler").Start(r.Context(), "end_consultation")
	defer span.End()

	var notes consultation.ClinicalNotes
	if r.ContentLength != 0 {
		if !decode(w, r, &notes) {
			return
		}
	}

	fc, warnings, err := s.End(ctx, notes)
	countWarnings(h.metrics, warnings)
	if err != nil {
		span.RecordError(err)
		fail(w, h.logger, "failed to record visit", err)
		return
	}
	h.manager.Remove(s.ID)
	if h.metrics != nil {
		h.metrics.ConsultationsFinalized.Inc()
	}
	h.trackActive()
	span.SetAttributes(
		attribute.String("visit_id", fc.ID),
		attribute.Int("rows", len(fc.Rows)),
	)

	h.logger.Info("visit recorded",
		zap.String("session_id", s.ID),
		zap.String("visit_id", fc.ID),
		zap.Int("visit_number", fc.VisitNumber),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)
	writeJSON(w, http.StatusOK, EndResponse{Visit: fc, Warnings: warningsOrEmpty(warnings)})
}

// Discard handles DELETE /consultations/{id}: the session is dropped and no
// visit is recorded
func (h *ConsultationHandler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Discard(chi.URLParam(r, "id")); err != nil {
		fail(w, h.logger, "failed to discard consultation", err)
		return
	}
	h.trackActive()
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConsultationHandler) session(w http.ResponseWriter, r *http.Request) (*consultation.Session, bool) {
	s, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		fail(w, h.logger, "failed to load consultation", err)
		return nil, false
	}
	return s, true
}

func (h *ConsultationHandler) sessionRow(w http.ResponseWriter, r *http.Request) (*consultation.Session, int, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, 0, false
	}
	i, err := rowIndex(r)
	if err != nil {
		fail(w, h.logger, "invalid row index", err)
		return nil, 0, false
	}
	return s, i, true
}

// observeOutcome records parse and pattern-memory metrics for an edit
func (h *ConsultationHandler) observeOutcome(parsed bool, out consultation.Outcome, d time.Duration) {
	countWarnings(h.metrics, out.Warnings)
	if h.metrics == nil {
		return
	}
	if parsed && out.Parsed != nil {
		observeParse(h.metrics, *out.Parsed, d)
	}
	if out.Row.Medicine == "" {
		return
	}
	result := "miss"
	if out.PatternApplied {
		result = "hit"
	}
	h.metrics.PatternLookups.WithLabelValues(result).Inc()
}

func (h *ConsultationHandler) trackActive() {
	if h.metrics != nil {
		h.metrics.ActiveSessions.Set(float64(h.manager.Active()))
	}
}
