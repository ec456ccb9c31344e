package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the backend status (run mode, uptime) for dashboards.
type StatusHandler struct {
	Mode      string
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler for the given run mode.
func NewStatusHandler(mode string, startedAt time.Time) *StatusHandler {
	return &StatusHandler{Mode: mode, StartedAt: startedAt}
}

// GetStatus responds with the current run mode and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
