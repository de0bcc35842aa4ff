package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Handler serves GET /api/health. It always answers 200; the body reports
// healthy or unhealthy along with per-component status.
type Handler struct {
	svc       *ServiceHealthChecker
	heartbeat *Heartbeat
}

// NewHandler builds the health endpoint. heartbeat may be nil.
func NewHandler(svc *ServiceHealthChecker, heartbeat *Heartbeat) *Handler {
	return &Handler{svc: svc, heartbeat: heartbeat}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	status := "unhealthy"
	if h.svc.IsHealthy() {
		status = "healthy"
	}
	resp := map[string]any{
		"status":     status,
		"components": h.svc.Components(),
		"timestamp":  time.Now().Format(time.RFC3339),
	}
	if h.heartbeat != nil {
		if last := h.heartbeat.LastBeat(); !last.IsZero() {
			resp["lastPass"] = last.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
