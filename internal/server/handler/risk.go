package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/service"
)

// RiskService defines the methods that the risk handler requires.
type RiskService interface {
	AccountRisk(ctx context.Context, accountID string) (service.AccountRiskReport, error)
	StressTest(ctx context.Context, accountID string) (map[string]float64, error)
	ListEvents(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.RiskEvent, error)
}

// RiskHandler serves portfolio-risk HTTP endpoints.
type RiskHandler struct {
	risk   RiskService
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler with the given service and logger.
func NewRiskHandler(risk RiskService, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{
		risk:   risk,
		logger: logger,
	}
}

// AccountRisk returns the full risk report for an account: margin level and
// health, concentration, value at risk, drawdown, and overall status.
// GET /api/accounts/{id}/risk
func (h *RiskHandler) AccountRisk(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	report, err := h.risk.AccountRisk(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: account risk failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute risk report")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// stressTestResponse maps scenario names to post-shock equity.
type stressTestResponse struct {
	Scenarios map[string]float64 `json:"scenarios"`
}

// StressTest applies the configured price shocks to the account's open
// positions and returns the resulting equity per scenario.
// GET /api/accounts/{id}/risk/stress
func (h *RiskHandler) StressTest(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	results, err := h.risk.StressTest(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: stress test failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to run stress test")
		return
	}

	writeJSON(w, http.StatusOK, stressTestResponse{Scenarios: results})
}

// listRiskEventsResponse wraps the risk event listing response.
type listRiskEventsResponse struct {
	Events []domain.RiskEvent `json:"events"`
}

// ListEvents returns recorded margin-call, stop-out, and recovery events for
// an account, newest first.
// GET /api/accounts/{id}/risk/events?limit=50&offset=0
func (h *RiskHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	events, err := h.risk.ListEvents(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list risk events failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list risk events")
		return
	}

	if events == nil {
		events = []domain.RiskEvent{}
	}

	writeJSON(w, http.StatusOK, listRiskEventsResponse{Events: events})
}
