package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campaignkit/socialscrape/internal/cache"
	"github.com/campaignkit/socialscrape/internal/ratelimit"
	"github.com/campaignkit/socialscrape/internal/scraper"
	"github.com/campaignkit/socialscrape/internal/testutil"
)

func newTestServer() *Server {
	logger := testutil.NullLogger()
	sc := scraper.New(scraper.Credentials{}, ratelimit.New(0), cache.NewMemory(time.Minute), logger)
	return New(sc, logger)
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] != "hello" {
		t.Errorf("message = %q", body["message"])
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, "invalid_input", "handle is required")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "invalid_input" || body["message"] != "handle is required" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleScrape_Validation(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{nope", http.StatusBadRequest},
		{"missing handle", http.MethodPost, `{"maxItems": 10}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/api/scrape", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			s.handleScrape(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleScrapeBatch_Validation(t *testing.T) {
	s := newTestServer()

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "[", http.StatusBadRequest},
		{"no handles", http.MethodPost, `{"handles": []}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/api/scrape/batch", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			s.handleScrapeBatch(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleAvatar_RequiresHandle(t *testing.T) {
	s := newTestServer()

	r := httptest.NewRequest(http.MethodGet, "/api/avatar", nil)
	w := httptest.NewRecorder()
	s.handleAvatar(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestConfigAPI_CredentialLifecycle(t *testing.T) {
	s := newTestServer()
	api := NewConfigAPI(s.scraper, s.logger)

	status := func() map[string]bool {
		r := httptest.NewRequest(http.MethodGet, "/api/config/status", nil)
		w := httptest.NewRecorder()
		api.handleStatus(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("status endpoint returned %d", w.Code)
		}
		var body map[string]bool
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body
	}

	if got := status(); got["credentialConfigured"] || got["sessionConfigured"] {
		t.Fatalf("fresh server should report nothing configured: %v", got)
	}

	r := httptest.NewRequest(http.MethodPut, "/api/config/credential", bytes.NewBufferString(`{"key": "sd_key"}`))
	w := httptest.NewRecorder()
	api.handleCredential(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("set credential returned %d", w.Code)
	}
	if got := status(); !got["credentialConfigured"] {
		t.Error("credential should be reported configured")
	}

	r = httptest.NewRequest(http.MethodDelete, "/api/config/credential", nil)
	w = httptest.NewRecorder()
	api.handleCredential(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("clear credential returned %d", w.Code)
	}
	if got := status(); got["credentialConfigured"] {
		t.Error("credential should be cleared")
	}
}

func TestConfigAPI_SessionLifecycle(t *testing.T) {
	s := newTestServer()
	api := NewConfigAPI(s.scraper, s.logger)

	r := httptest.NewRequest(http.MethodPut, "/api/config/session", bytes.NewBufferString(`{"cookie": "tok", "csrfToken": "csrf"}`))
	w := httptest.NewRecorder()
	api.handleSession(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("set session returned %d", w.Code)
	}
	if !s.scraper.HasSession() {
		t.Error("session not configured")
	}

	r = httptest.NewRequest(http.MethodDelete, "/api/config/session", nil)
	w = httptest.NewRecorder()
	api.handleSession(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("clear session returned %d", w.Code)
	}
	if s.scraper.HasSession() {
		t.Error("session not cleared")
	}
}

func TestConfigAPI_Validation(t *testing.T) {
	s := newTestServer()
	api := NewConfigAPI(s.scraper, s.logger)

	r := httptest.NewRequest(http.MethodPut, "/api/config/credential", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	api.handleCredential(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty key should 400, got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodPut, "/api/config/session", bytes.NewBufferString(`{"csrfToken": "only"}`))
	w = httptest.NewRecorder()
	api.handleSession(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing cookie should 400, got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "/api/config/credential", nil)
	w = httptest.NewRecorder()
	api.handleCredential(w, r)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST should be rejected, got %d", w.Code)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	s := newTestServer()
	mux := s.routes()

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("health returned %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("metrics returned %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer()
	mux := s.routes()

	r := httptest.NewRequest(http.MethodOptions, "/api/scrape", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("preflight returned %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q", got)
	}
}
