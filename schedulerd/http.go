package schedulerd

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/areahq/area-engine/internal/health"
	"github.com/areahq/area-engine/internal/scheduler"
)

// buildRouter wires the health, metrics and manual-pass endpoints.
func buildRouter(svcHealth *health.ServiceHealthChecker, heartbeat *health.Heartbeat, sched *scheduler.Scheduler) *mux.Router {
	root := mux.NewRouter()
	root.Use(recoverMiddleware)

	root.Handle("/api/health", health.NewHandler(svcHealth, heartbeat)).Methods(http.MethodGet)
	root.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if sched != nil {
		root.HandleFunc("/api/passes", runPass(sched)).Methods(http.MethodPost)
	}
	return root
}

// runPass triggers one evaluation pass now and returns its report. It waits
// for any pass already running.
func runPass(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := sched.RunOnce(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// recoverMiddleware intercepts panics from downstream handlers, logs details, and returns HTTP 500.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("url", r.URL.String()).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal Server Error", "code": 500})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
