package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConfigurableCORS(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	t.Run("default CORS headers applied", func(t *testing.T) {
		handler := ConfigurableCORS(nextHandler)
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
			t.Errorf("Allow-Origin = %q, want %q", origin, "*")
		}
		if methods := rr.Header().Get("Access-Control-Allow-Methods"); methods != "GET, POST, PUT, DELETE, OPTIONS" {
			t.Errorf("Allow-Methods = %q, want %q", methods, "GET, POST, PUT, DELETE, OPTIONS")
		}
	})

	t.Run("custom CORS origin from env", func(t *testing.T) {
		t.Setenv("CORS_ALLOW_ORIGIN", "https://example.com")

		handler := ConfigurableCORS(nextHandler)
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "https://example.com" {
			t.Errorf("Allow-Origin = %q, want %q", origin, "https://example.com")
		}
	})

	t.Run("CORS disabled", func(t *testing.T) {
		t.Setenv("CORS_ENABLED", "false")

		handler := ConfigurableCORS(nextHandler)
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "" {
			t.Errorf("CORS headers should not be set when disabled, got Allow-Origin = %q", origin)
		}
	})

	t.Run("preflight request handled", func(t *testing.T) {
		handler := ConfigurableCORS(nextHandler)
		req := httptest.NewRequest(http.MethodOptions, "/test", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("preflight status = %d, want %d", rr.Code, http.StatusOK)
		}
		if body := rr.Body.String(); body != "" {
			t.Errorf("preflight body = %q, want empty", body)
		}
	})
}

func TestRecovery(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(rr.Body.String(), "api_error") {
		t.Errorf("body = %q, want api_error payload", rr.Body.String())
	}
}

func TestBodyLimit(t *testing.T) {
	handler := BodyLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader("{}"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}
