package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/quillfx/papertrader/internal/cache/memory"
	"github.com/quillfx/papertrader/internal/domain"
	"github.com/quillfx/papertrader/internal/risk"
	"github.com/quillfx/papertrader/internal/service"
	"github.com/quillfx/papertrader/internal/store/memory"
)

func newRiskHandler(t *testing.T) *RiskHandler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	accounts := memory.NewAccountStore()
	now := time.Now().UTC()
	require.NoError(t, accounts.Create(context.Background(), domain.Account{
		ID:        "acct-1",
		Currency:  "USD",
		Balance:   10000,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	svc := service.NewRiskService(
		memory.NewPositionStore(), accounts, memory.NewAssetSpecStore(),
		memory.NewLedgerStore(), memory.NewRiskEventStore(),
		cachemem.NewSignalBus(), nil,
		service.RiskServiceConfig{
			Bands:          risk.MarginBands{CallLevel: 100, StopOutLevel: 50, StopOutInclusive: true},
			VaRConfidence:  0.95,
			DrawdownWindow: 30 * 24 * time.Hour,
		},
		logger,
	)
	return NewRiskHandler(svc, logger)
}

func TestAccountRiskFlatAccountReturnsOK(t *testing.T) {
	h := newRiskHandler(t)

	// An account with no open positions has no margin in use; the report
	// must still serialize and come back as a 200.
	r := httptest.NewRequest(http.MethodGet, "/api/accounts/acct-1/risk", nil)
	r.SetPathValue("id", "acct-1")
	w := httptest.NewRecorder()

	h.AccountRisk(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Nil(t, body["margin_level"])
	assert.Equal(t, string(risk.MarginHealthy), body["margin_health"])
}

func TestAccountRiskUnknownAccount(t *testing.T) {
	h := newRiskHandler(t)

	r := httptest.NewRequest(http.MethodGet, "/api/accounts/nope/risk", nil)
	r.SetPathValue("id", "nope")
	w := httptest.NewRecorder()

	h.AccountRisk(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
