package main

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/c360/telemetrystream/errors"
	"github.com/c360/telemetrystream/health"
	"github.com/c360/telemetrystream/shaper"
)

const maxBodyBytes = 64 << 10

// newMux routes the display, observability and control endpoints.
func newMux(p *pipeline) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", p.broadcaster)
	mux.Handle("GET /metrics", p.registry.Handler())
	mux.Handle("GET /health", health.Handler(func() health.Status {
		return health.Aggregate(appName, []health.Status{
			health.FromState("stream", p.coordinator.Snapshot(), time.Now()),
		})
	}))
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, p.coordinator.Snapshot())
	})
	mux.HandleFunc("GET /config", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, p.coordinator.Config())
	})
	mux.HandleFunc("POST /config", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		var patch shaper.Patch
		if err := json.Unmarshal(body, &patch); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := p.coordinator.UpdateConfig(patch); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeJSON(w, http.StatusOK, p.coordinator.Config())
	})
	mux.HandleFunc("POST /control/{action}", func(w http.ResponseWriter, r *http.Request) {
		action, ok := controls(p)[r.PathValue("action")]
		if !ok {
			writeError(w, http.StatusNotFound, errors.WrapInvalid(errors.ErrInvalidData,
				"server", "control", "unknown action "+r.PathValue("action")))
			return
		}
		action()
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}

func controls(p *pipeline) map[string]func() {
	c := p.coordinator
	return map[string]func(){
		"start":         c.Start,
		"stop":          c.Stop,
		"pause":         c.Pause,
		"resume":        c.Resume,
		"reset":         c.Reset,
		"clear-metrics": c.ClearMetrics,
		"clear-errors":  c.ClearErrors,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
