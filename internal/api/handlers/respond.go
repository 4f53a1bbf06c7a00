// Package handlers provides HTTP handlers for the doctor-panel API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/domain/combination"
	"github.com/homeopms/go-smartrx/internal/domain/consultation"
	"github.com/homeopms/go-smartrx/internal/domain/dispensing"
	"github.com/homeopms/go-smartrx/internal/domain/smartparse"
	"github.com/homeopms/go-smartrx/internal/observability/metrics"
)

// maxBodyBytes bounds request bodies; settings tables are the largest payload
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, consultation.ErrSessionNotFound),
		errors.Is(err, consultation.ErrCombinationNotFound),
		errors.Is(err, dispensing.ErrTicketNotFound):
		return http.StatusNotFound
	case errors.Is(err, consultation.ErrSessionEnded),
		errors.Is(err, combination.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, consultation.ErrRowIndex),
		errors.Is(err, consultation.ErrUnknownField),
		errors.Is(err, consultation.ErrCombinationRow),
		errors.Is(err, consultation.ErrInvalidDirection),
		errors.Is(err, consultation.ErrEmptyEntry),
		errors.Is(err, consultation.ErrClinicianRequired),
		errors.Is(err, combination.ErrInvalidCombination),
		errors.Is(err, smartparse.ErrInvalidConfig),
		errors.Is(err, dispensing.ErrInvalidStatus):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Server errors are logged and their
// detail withheld from the caller.
func fail(w http.ResponseWriter, logger *zap.Logger, msg string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
		jsonError(w, msg, code)
		return
	}
	jsonError(w, err.Error(), code)
}

// rowIndex reads the {index} URL parameter. Non-numeric indexes are reported
// as out of range like any other bad index.
func rowIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Join(consultation.ErrRowIndex, err)
	}
	return i, nil
}

// countWarnings feeds persistence warnings to metrics. The stores already log them.
func countWarnings(m *metrics.Metrics, warnings []consultation.Warning) {
	if m == nil {
		return
	}
	for _, w := range warnings {
		m.PersistenceWarnings.WithLabelValues(w.Store).Inc()
	}
}

// warningsOrEmpty keeps "warnings" present as [] in responses
func warningsOrEmpty(w []consultation.Warning) []consultation.Warning {
	if w == nil {
		return []consultation.Warning{}
	}
	return w
}
