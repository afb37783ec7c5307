package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is implemented by *pgxpool.Pool and *cache.Cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ModelStatus reports on the model loaded at startup.
type ModelStatus interface {
	Ready() bool
	ModelName() string
}

type HealthHandler struct {
	model ModelStatus
	deps  map[string]Pinger
}

// NewHealthHandler takes the optional dependencies to check on /readyz. Nil entries are skipped.
func NewHealthHandler(model ModelStatus, deps map[string]Pinger) *HealthHandler {
	checked := map[string]Pinger{}
	for name, p := range deps {
		if p != nil {
			checked[name] = p
		}
	}
	return &HealthHandler{model: model, deps: checked}
}

// Root is the service banner: it always answers 200 and reports whether the model loaded.
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	modelStatus := "loaded"
	if !h.model.Ready() {
		modelStatus = "failed_to_load"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "running",
		"model_status": modelStatus,
		"model_name":   h.model.ModelName(),
	})
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"model": "ok"}
	if !h.model.Ready() {
		checks["model"] = "unhealthy: model not loaded"
	}

	for name, p := range h.deps {
		if err := p.Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, status, map[string]any{"status": statusStr(status), "checks": checks})
}

func statusStr(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unhealthy"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
