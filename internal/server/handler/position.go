package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/risk"
	"github.com/quillfx/papertrader/internal/service"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	Detail(ctx context.Context, id string) (service.PositionDetail, error)
	ListOpen(ctx context.Context, accountID string) ([]domain.Position, error)
	ListAllOpen(ctx context.Context) ([]domain.Position, error)
	ListHistory(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Position, error)
	SetProtection(ctx context.Context, id string, stopLoss, takeProfit, trailingDistance *float64) (domain.Position, error)
	ClosePosition(ctx context.Context, id string, reason domain.ClosureReason) (domain.ClosureResult, error)
	PartialClose(ctx context.Context, id string, quantity float64) (domain.ClosureResult, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns open positions for an account, or every open
// position across the platform when account_id is omitted. With
// status=closed it returns the closed-position history instead.
// GET /api/positions?account_id=...&status=open|closed
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")

	var positions []domain.Position
	var err error
	switch {
	case r.URL.Query().Get("status") == "closed":
		if accountID == "" {
			writeError(w, http.StatusBadRequest, "account_id required for closed-position history")
			return
		}
		positions, err = h.positions.ListHistory(r.Context(), accountID, parseListOpts(r))
	case accountID == "":
		positions, err = h.positions.ListAllOpen(r.Context())
	default:
		positions, err = h.positions.ListOpen(r.Context(), accountID)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns a single position enriched with its P&L breakdown and
// estimated liquidation price.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	p, err := h.positions.Detail(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// protectionRequest carries protective-level updates. A null field clears the
// corresponding level.
type protectionRequest struct {
	StopLoss         *float64 `json:"stop_loss"`
	TakeProfit       *float64 `json:"take_profit"`
	TrailingDistance *float64 `json:"trailing_distance"`
}

// SetProtection replaces the protective levels on an open position.
// PUT /api/positions/{id}/protection
func (h *PositionHandler) SetProtection(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	var req protectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	p, err := h.positions.SetProtection(r.Context(), id, req.StopLoss, req.TakeProfit, req.TrailingDistance)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		if errors.Is(err, risk.ErrAlreadyClosed) {
			writeError(w, http.StatusConflict, "position is not open")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: set protection failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update protection")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// closeRequest carries an optional partial quantity. Zero or absent quantity
// closes the whole position.
type closeRequest struct {
	Quantity float64 `json:"quantity"`
}

// ClosePosition closes a position at the current market price, in full or in
// part depending on the requested quantity.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing position id")
		return
	}

	var req closeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	var result domain.ClosureResult
	var err error
	if req.Quantity > 0 {
		result, err = h.positions.PartialClose(r.Context(), id, req.Quantity)
	} else {
		result, err = h.positions.ClosePosition(r.Context(), id, domain.ClosureReasonManual)
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "position not found")
		case errors.Is(err, risk.ErrAlreadyClosed):
			writeError(w, http.StatusConflict, "position is already closed")
		case errors.Is(err, risk.ErrInvalidQuantity):
			writeError(w, http.StatusBadRequest, "invalid close quantity")
		default:
			h.logger.ErrorContext(r.Context(), "handler: close position failed",
				slog.String("position_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to close position")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
