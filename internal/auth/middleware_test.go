package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func call(t *testing.T, h http.Handler, header, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMiddleware_ModeNone_PassesThrough(t *testing.T) {
	h := Middleware("none", "x-api-key", "secret", okHandler())
	// No key in the request — should still pass because mode != "apikey".
	if rr := call(t, h, "x-api-key", ""); rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rr.Code)
	}
}

func TestMiddleware_EmptyKey_PassesThrough(t *testing.T) {
	// apikey mode but no key configured (e.g. env var unset).
	h := Middleware("apikey", "x-api-key", "", okHandler())
	if rr := call(t, h, "x-api-key", ""); rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rr.Code)
	}
}

func TestMiddleware_CorrectKey_Passes(t *testing.T) {
	h := Middleware("apikey", "x-api-key", "supersecret", okHandler())
	if rr := call(t, h, "x-api-key", "supersecret"); rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rr.Code)
	}
}

func TestMiddleware_WrongKey_Unauthorized(t *testing.T) {
	h := Middleware("apikey", "x-api-key", "supersecret", okHandler())
	if rr := call(t, h, "x-api-key", "nope"); rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rr.Code)
	}
}

func TestMiddleware_MissingKey_Unauthorized(t *testing.T) {
	h := Middleware("apikey", "x-api-key", "supersecret", okHandler())
	if rr := call(t, h, "x-api-key", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rr.Code)
	}
}

func TestMiddleware_CustomHeader(t *testing.T) {
	h := Middleware("apikey", "x-qc-key", "supersecret", okHandler())
	if rr := call(t, h, "x-qc-key", "supersecret"); rr.Code != http.StatusOK {
		t.Errorf("custom header: got %d, want 200", rr.Code)
	}
	if rr := call(t, h, "x-api-key", "supersecret"); rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong header: got %d, want 401", rr.Code)
	}
}
