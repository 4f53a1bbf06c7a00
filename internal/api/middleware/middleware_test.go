package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(GetClientID(r.Context())))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	h.ServeHTTP(rec, req)
	if seen != "req-42" || rec.Header().Get("X-Request-ID") != "req-42" {
		t.Errorf("request id = %q, header %q", seen, rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "req-42" {
		t.Errorf("generated request id = %q", seen)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"k1": "front-desk"})(http.HandlerFunc(okHandler))

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantBody   string
	}{
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"invalid", "X-API-Key", "nope", http.StatusUnauthorized, ""},
		{"header", "X-API-Key", "k1", http.StatusOK, "front-desk"},
		{"bearer", "Authorization", "Bearer k1", http.StatusOK, "front-desk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("client = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAPIKeyAuth_NoKeysConfigured(t *testing.T) {
	h := APIKeyAuth(nil)(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != AnonymousClient {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRecover(t *testing.T) {
	h := Recover(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/consultations", nil))
	if called || rec.Code != http.StatusNoContent {
		t.Errorf("preflight reached handler=%v status=%d", called, rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("missing allow methods")
	}
}

func TestLogger_CapturesStatus(t *testing.T) {
	h := Logger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot || rec.Body.String() != "short and stout" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}

	rw := wrap(httptest.NewRecorder())
	rw.WriteHeader(http.StatusCreated)
	rw.Write([]byte("abc"))
	if rw.statusCode != http.StatusCreated || rw.bytes != 3 {
		t.Errorf("wrapped = %d/%d", rw.statusCode, rw.bytes)
	}
	if wrap(rw) != rw {
		t.Error("wrap should reuse an existing responseWriter")
	}
}
