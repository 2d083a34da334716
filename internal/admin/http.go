// Package admin exposes a small read-only HTTP introspection surface for
// operators: health, role/term status, host stats, and Prometheus metrics. Built
// on go-chi/chi/v5, the teacher's own REST API router library, scaled down
// to what a single coordination node needs. There is no admin gRPC surface
// here — see DESIGN.md for why.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/raftkit/raftd/internal/metrics"
	"github.com/raftkit/raftd/internal/raft"
)

// StatusProvider is the minimal view of the running Raft service the
// admin surface needs. raft.Service satisfies it directly.
type StatusProvider interface {
	Role() raft.Role
	Term() uint64
}

type statusResponse struct {
	Role string `json:"role"`
	Term uint64 `json:"term"`
}

// NewRouter builds the admin HTTP handler.
func NewRouter(svc StatusProvider, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{Role: svc.Role().String(), Term: svc.Term()}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("failed to encode status response", zap.Error(err))
		}
	})

	r.Get("/hoststats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := metrics.CollectHostStats()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			logger.Warn("failed to encode hoststats response", zap.Error(err))
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
