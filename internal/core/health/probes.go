// Package health serves the liveness and readiness probes of the ops listener.
package health

import (
	"net/http"

	"github.com/goccy/go-json"
)

// ReadinessReporter is implemented by the worker pool.
type ReadinessReporter interface {
	Readiness() (ready bool, workers int)
}

// Liveness answers 200 "ok" while the process is serving.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		h := w.Header()
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte("ok"))
	}
}

// Readiness answers 503 once the pool stops admitting work.
func Readiness(rr ReadinessReporter) http.HandlerFunc {
	type resp struct {
		Status  string `json:"status"`
		Workers int    `json:"workers,omitempty"`
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		ready, workers := rr.Readiness()
		out := resp{Status: "not_ready"}
		if ready {
			out.Status = "ready"
			out.Workers = workers
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
