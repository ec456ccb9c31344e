package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/quillfx/papertrader/internal/domain"
)

// ArchiveHandler triggers an on-demand archival run over HTTP.
type ArchiveHandler struct {
	archiver  domain.Archiver
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. retention controls how old a
// record must be before it is moved to cold storage.
func NewArchiveHandler(archiver domain.Archiver, retention time.Duration, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archiver:  archiver,
		retention: retention,
		logger:    logger,
	}
}

// triggerArchiveRequest optionally overrides the cutoff timestamp.
type triggerArchiveRequest struct {
	Before *time.Time `json:"before"`
}

// triggerArchiveResponse reports how many rows each run moved.
type triggerArchiveResponse struct {
	Before     time.Time `json:"before"`
	Positions  int64     `json:"positions"`
	Orders     int64     `json:"orders"`
	RiskEvents int64     `json:"risk_events"`
}

// TriggerArchive runs the archiver immediately instead of waiting for the
// scheduled run.
// POST /api/archive/trigger
func (h *ArchiveHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	var req triggerArchiveRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	before := time.Now().UTC().Add(-h.retention)
	if req.Before != nil {
		before = req.Before.UTC()
	}

	ctx := r.Context()
	resp := triggerArchiveResponse{Before: before}
	var err error

	if resp.Positions, err = h.archiver.ArchivePositions(ctx, before); err == nil {
		if resp.Orders, err = h.archiver.ArchiveOrders(ctx, before); err == nil {
			resp.RiskEvents, err = h.archiver.ArchiveRiskEvents(ctx, before)
		}
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: archive run failed",
			slog.Time("before", before),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "archive run failed")
		return
	}

	h.logger.InfoContext(ctx, "handler: archive run complete",
		slog.Time("before", before),
		slog.Int64("positions", resp.Positions),
		slog.Int64("orders", resp.Orders),
		slog.Int64("risk_events", resp.RiskEvents),
	)
	writeJSON(w, http.StatusOK, resp)
}
