package api

import (
	"net/http"
)

// HealthDB reports connectivity of both persistence backends.
func (h *Handler) HealthDB(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"sessions":    "ok",
		"checkpoints": "ok",
	}
	code := http.StatusOK

	if err := h.repo.Ping(r.Context()); err != nil {
		status["sessions"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if h.checkpoints != nil {
		if err := h.checkpoints.Ping(r.Context()); err != nil {
			status["checkpoints"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	} else {
		status["checkpoints"] = "not configured"
	}

	JSON(w, code, status)
}
