package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestIDEchoesIncomingID(t *testing.T) {
	const id = "client-supplied-id"
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromRequest(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", id)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != id {
		t.Fatalf("context request id = %q, want %q", seen, id)
	}
	if got := rec.Header().Get("X-Request-Id"); got != id {
		t.Fatalf("response request id = %q, want %q", got, id)
	}
}

func TestWithRequestIDMintsWhenAbsent(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromRequest(r)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if seen == "" {
		t.Fatal("expected a minted request id in context")
	}
	if got := rec.Header().Get("X-Request-Id"); got != seen {
		t.Fatalf("response id %q does not match context id %q", got, seen)
	}
}
