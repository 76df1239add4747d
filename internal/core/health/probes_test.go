package health

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLiveness_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	Liveness()(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type=%q want text/plain", ct)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "ok" {
		t.Fatalf("body=%q want ok", got)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("cache-control=%q want no-store", cc)
	}
}

type fakePool struct {
	ready   bool
	workers int
}

func (f fakePool) Readiness() (bool, int) { return f.ready, f.workers }

func TestReadiness_Handler(t *testing.T) {
	tests := []struct {
		name     string
		pool     fakePool
		wantCode int
		wantBody string
	}{
		{"ready", fakePool{true, 4}, http.StatusOK, `{"status":"ready","workers":4}`},
		{"closed", fakePool{false, 4}, http.StatusServiceUnavailable, `{"status":"not_ready"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			Readiness(tt.pool)(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tt.wantCode {
				t.Fatalf("status=%d want %d", rr.Code, tt.wantCode)
			}
			if got := strings.TrimSpace(rr.Body.String()); got != tt.wantBody {
				t.Fatalf("body=%s want %s", got, tt.wantBody)
			}
		})
	}
}
