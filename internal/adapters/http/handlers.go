package http

import (
	"encoding/json"
	"net/http"

	"github.com/jobrunner/geefetch/internal/application"
	"github.com/jobrunner/geefetch/internal/ports/input"
)

// statusResponse is the body of GET /status.
type statusResponse struct {
	Run   input.RunStatus          `json:"run"`
	Drops []application.DropResult `json:"drops,omitempty"`
}

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	healthy := s.health.IsHealthy(ctx)
	run := s.health.GetStatus(ctx)

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status": boolToStatus(healthy),
		"ready":  s.health.IsReady(ctx),
		"phase":  run.Phase,
		"run_id": run.RunID,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status. A failed run makes the process not ready.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleStatus returns the current run and the drop-folder results.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Run: s.health.GetStatus(r.Context())}
	if s.drops != nil {
		resp.Drops = s.drops.Results()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
