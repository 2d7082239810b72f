package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAllOK(t *testing.T) {
	s := NewServer(0,
		Check{CheckName: "redis", Ping: func(ctx context.Context) error { return nil }},
		Check{CheckName: "postgres", Ping: func(ctx context.Context) error { return nil }},
	)

	rr := serve(t, s, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %s", body.Status)
	}
	if body.Checks["redis"] != "ok" || body.Checks["postgres"] != "ok" {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestHealthCriticalOnFailure(t *testing.T) {
	s := NewServer(0,
		Check{CheckName: "redis", Ping: func(ctx context.Context) error { return nil }},
		Check{CheckName: "postgres", Ping: func(ctx context.Context) error { return errors.New("connection refused") }},
	)

	rr := serve(t, s, "/health")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "critical" {
		t.Errorf("status = %s", body.Status)
	}
	if body.Checks["postgres"] != "connection refused" {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	s := NewServer(0)
	rr := serve(t, s, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}
