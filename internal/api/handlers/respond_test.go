package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/domain/combination"
	"github.com/homeopms/go-smartrx/internal/domain/consultation"
	"github.com/homeopms/go-smartrx/internal/domain/dispensing"
	"github.com/homeopms/go-smartrx/internal/domain/smartparse"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: s-1", consultation.ErrSessionNotFound), http.StatusNotFound},
		{dispensing.ErrTicketNotFound, http.StatusNotFound},
		{consultation.ErrSessionEnded, http.StatusConflict},
		{fmt.Errorf("save combination: %w", combination.ErrDuplicateName), http.StatusConflict},
		{fmt.Errorf("%w: 9 (rows: 1)", consultation.ErrRowIndex), http.StatusBadRequest},
		{consultation.ErrEmptyEntry, http.StatusBadRequest},
		{fmt.Errorf("%w: quantities[0]", smartparse.ErrInvalidConfig), http.StatusBadRequest},
		{dispensing.ErrInvalidStatus, http.StatusBadRequest},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFail_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	fail(rec, nopLogger(), "failed to record visit", errors.New("pq: password authentication failed"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); body != "{\"error\":\"failed to record visit\"}\n" {
		t.Errorf("body = %q", body)
	}
}

func TestRowIndex(t *testing.T) {
	for raw, wantErr := range map[string]bool{"0": false, "12": false, "x": true, "": true} {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("index", raw)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(contextWithRoute(req, rctx))

		_, err := rowIndex(req)
		if (err != nil) != wantErr {
			t.Errorf("rowIndex(%q) err = %v", raw, err)
		}
		if err != nil && !errors.Is(err, consultation.ErrRowIndex) {
			t.Errorf("rowIndex(%q) error should wrap ErrRowIndex", raw)
		}
	}
}

func contextWithRoute(r *http.Request, rctx *chi.Context) context.Context {
	return context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
}

func nopLogger() *zap.Logger { return zap.NewNop() }
