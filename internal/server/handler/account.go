package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/service"
)

// AccountService defines the methods that the account handler requires.
type AccountService interface {
	CreateAccount(ctx context.Context, id string) (domain.Account, error)
	GetAccount(ctx context.Context, id string) (domain.Account, float64, error)
	Ledger(ctx context.Context, id string, opts domain.ListOpts) ([]domain.LedgerEntry, error)
	Performance(ctx context.Context, id string) (service.PerformanceReport, error)
}

// AccountHandler serves account-related HTTP endpoints.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler with the given service and logger.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// createAccountRequest optionally names the new account. When ID is empty a
// random one is assigned.
type createAccountRequest struct {
	ID string `json:"id"`
}

// CreateAccount opens a new simulated account funded with the configured
// starting balance.
// POST /api/accounts
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	acct, err := h.accounts.CreateAccount(r.Context(), req.ID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "account already exists")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create account failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, acct)
}

// accountResponse augments the stored account with its live equity.
type accountResponse struct {
	domain.Account
	Equity float64 `json:"equity"`
}

// GetAccount returns an account with its equity marked to current prices.
// GET /api/accounts/{id}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	acct, equity, err := h.accounts.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get account failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get account")
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{Account: acct, Equity: equity})
}

// listLedgerResponse wraps the ledger listing response.
type listLedgerResponse struct {
	Entries []domain.LedgerEntry `json:"entries"`
}

// Ledger returns the account's cash movements, newest first.
// GET /api/accounts/{id}/ledger?limit=50&offset=0
func (h *AccountHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	entries, err := h.accounts.Ledger(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list ledger failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list ledger")
		return
	}

	if entries == nil {
		entries = []domain.LedgerEntry{}
	}

	writeJSON(w, http.StatusOK, listLedgerResponse{Entries: entries})
}

// Performance returns the account's closed-trade statistics.
// GET /api/accounts/{id}/performance
func (h *AccountHandler) Performance(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	report, err := h.accounts.Performance(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: account performance failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute performance")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
