package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/quillfx/papertrader/internal/domain"
)

// SpecHandler serves the per-symbol trading configuration.
type SpecHandler struct {
	specs  domain.AssetSpecStore
	logger *slog.Logger
}

// NewSpecHandler creates a SpecHandler with the given store and logger.
func NewSpecHandler(specs domain.AssetSpecStore, logger *slog.Logger) *SpecHandler {
	return &SpecHandler{
		specs:  specs,
		logger: logger,
	}
}

// listSpecsResponse wraps the spec listing response.
type listSpecsResponse struct {
	Specs []domain.AssetSpec `json:"specs"`
}

// ListSpecs returns all tradable symbols with their contract parameters.
// GET /api/specs
func (h *SpecHandler) ListSpecs(w http.ResponseWriter, r *http.Request) {
	specs, err := h.specs.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list specs failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list specs")
		return
	}

	if specs == nil {
		specs = []domain.AssetSpec{}
	}

	writeJSON(w, http.StatusOK, listSpecsResponse{Specs: specs})
}

// GetSpec returns the trading configuration for one symbol.
// GET /api/specs/{symbol}
func (h *SpecHandler) GetSpec(w http.ResponseWriter, r *http.Request) {
	symbol := pathParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	spec, err := h.specs.Get(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "symbol not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get spec failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get spec")
		return
	}

	writeJSON(w, http.StatusOK, spec)
}
