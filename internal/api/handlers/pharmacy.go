package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/domain/dispensing"
)

// PharmacyHandler exposes the dispensing queue to the pharmacy screen
type PharmacyHandler struct {
	queue  dispensing.Repository
	logger *zap.Logger
}

// NewPharmacyHandler creates a new handler
func NewPharmacyHandler(queue dispensing.Repository, logger *zap.Logger) *PharmacyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PharmacyHandler{queue: queue, logger: logger}
}

// Routes returns the handler routes
func (h *PharmacyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Patch("/{id}", h.Update)
	return r
}

// List handles GET /pharmacy-queue?clinician_id=&date=&status=
func (h *PharmacyHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := dispensing.Filter{
		ClinicianID: q.Get("clinician_id"),
		Date:        q.Get("date"),
	}
	if filter.Date != "" {
		if _, err := time.Parse(time.DateOnly, filter.Date); err != nil {
			jsonError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	if raw := q.Get("status"); raw != "" {
		st, err := dispensing.ParseStatus(raw)
		if err != nil {
			fail(w, h.logger, "invalid status", err)
			return
		}
		filter.Status = st
	}

	tickets, err := h.queue.List(r.Context(), filter)
	if err != nil {
		fail(w, h.logger, "failed to list pharmacy queue", err)
		return
	}
	if tickets == nil {
		tickets = []dispensing.Ticket{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tickets": tickets})
}

// UpdateTicketRequest moves a ticket through the workflow
type UpdateTicketRequest struct {
	Status   string `json:"status"`
	Priority bool   `json:"priority"`
}

// Update handles PATCH /pharmacy-queue/{id}
func (h *PharmacyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateTicketRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := dispensing.ParseStatus(req.Status)
	if err != nil {
		fail(w, h.logger, "invalid status", err)
		return
	}

	t, err := h.queue.UpdateStatus(r.Context(), id, status, req.Priority)
	if err != nil {
		fail(w, h.logger, "failed to update ticket", err)
		return
	}
	h.logger.Info("pharmacy ticket updated",
		zap.String("ticket_id", t.ID),
		zap.String("status", string(t.Status)),
		zap.Bool("priority", t.Priority),
	)
	writeJSON(w, http.StatusOK, t)
}
