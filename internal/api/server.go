package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gpu-job-dispatcher/internal/gpu"
	"gpu-job-dispatcher/internal/ledger"
	"gpu-job-dispatcher/internal/models"
	"gpu-job-dispatcher/internal/telemetry"
)

// Server exposes read-only inspection endpoints. The scheduler is the sole
// ledger writer, so there are no mutation routes; every response reflects
// whatever is on disk at request time.
type Server struct {
	ledger  *ledger.Ledger
	querier gpu.MemQuerier
	gpuIDs  []int
}

// New constructs the status API server.
func New(led *ledger.Ledger, q gpu.MemQuerier, gpuIDs []int) *Server {
	return &Server{
		ledger:  led,
		querier: q,
		gpuIDs:  gpuIDs,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Get("/jobs", s.handleJobs)
	r.Get("/jobs/{id}", s.handleJob)
	r.Get("/devices", s.handleDevices)
	return r
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	jobs, err := s.ledger.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	jobs, err := s.ledger.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, job := range jobs {
		if job.ID == id {
			writeJSON(w, http.StatusOK, job)
			return
		}
	}
	http.Error(w, "job not found", http.StatusNotFound)
}

// handleDevices returns a fresh free-memory snapshot for the allow-list.
func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	snap := gpu.Snapshot(s.querier, s.gpuIDs)
	writeJSON(w, http.StatusOK, map[string]any{"free_mem_mb": snap})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
