package financing

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/logging"
)

func seedTreasury(reader chain.Reader, fields map[string]any) {
	chain.PutObject(reader, chain.Object{
		ID:     "0xtreasury",
		Type:   "0xpkg::treasury::Treasury",
		Fields: chain.Fields(fields),
	})
}

func TestServiceParamsFromTreasury(t *testing.T) {
	ctx := context.Background()
	reader := chain.NewInMemory()
	seedTreasury(reader, map[string]any{"balance": "1000", "origination_fee_bps": "150", "take_rate_bps": "0"})

	svc, err := NewService(reader, "0xtreasury", scenarioParams, 5000, logging.Discard())
	require.NoError(t, err)

	p, source := svc.Params(ctx)
	assert.Equal(t, SourceTreasury, source)
	assert.Equal(t, Params{OriginationFeeBps: 150, TakeRateBps: 1000, SettlementFee: 10}, p)
}

func TestServiceParamsFallBackToConfig(t *testing.T) {
	ctx := context.Background()
	reader := chain.NewInMemory()
	chain.FailObject(reader, "0xtreasury", chain.ErrTransport)

	svc, err := NewService(reader, "0xtreasury", scenarioParams, 5000, logging.Discard())
	require.NoError(t, err)

	p, source := svc.Params(ctx)
	assert.Equal(t, SourceConfig, source)
	assert.Equal(t, scenarioParams, p)

	noTreasury, err := NewService(reader, "", scenarioParams, 5000, logging.Discard())
	require.NoError(t, err)
	_, err = noTreasury.Treasury(ctx)
	assert.ErrorIs(t, err, ErrNoTreasury)
}

func TestNewServiceRejectsBadParams(t *testing.T) {
	_, err := NewService(chain.NewInMemory(), "", Params{TakeRateBps: -1}, 5000, logging.Discard())
	assert.Error(t, err)
}

func newTestApp(t *testing.T, treasuryID string) (*fiber.App, chain.Reader) {
	t.Helper()
	reader := chain.NewInMemory()
	svc, err := NewService(reader, treasuryID, scenarioParams, 5000, logging.Discard())
	require.NoError(t, err)
	h := NewHandler(svc)

	app := fiber.New()
	app.Post("/financing/quote", h.Quote)
	app.Get("/financing/params", h.Params)
	app.Get("/treasury", h.Treasury)
	return app, reader
}

func TestHandlerQuote(t *testing.T) {
	app, _ := newTestApp(t, "")

	req := httptest.NewRequest(fiber.MethodPost, "/financing/quote",
		strings.NewReader(`{"face_value_micro":10000,"discount_bps":200,"days_until_due":60}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body QuoteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(9800), body.InvestorPays)
	assert.Equal(t, int64(9702), body.SupplierReceives)
	assert.Equal(t, int64(170), body.ExpectedNetProfit)
	assert.InDelta(t, 10.55, body.ExpectedAPY, 0.01)
	assert.Equal(t, 0.0098, body.InvestorPaysDisplay)
}

func TestHandlerQuoteRejectsMalformedDiscount(t *testing.T) {
	app, _ := newTestApp(t, "")

	req := httptest.NewRequest(fiber.MethodPost, "/financing/quote",
		strings.NewReader(`{"face_value_display":100.5,"discount_bps":6000,"days_until_due":60}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Fields, "discount_bps")
}

func TestHandlerTreasury(t *testing.T) {
	app, reader := newTestApp(t, "0xtreasury")
	seedTreasury(reader, map[string]any{"balance": "2500000", "fees_collected": "500000"})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/treasury", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body TreasuryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(2_500_000), body.Balance)
	assert.Equal(t, 2.5, body.BalanceDisplay)
	assert.Equal(t, SourceConfig, body.ParamsSource)

	missing, _ := newTestApp(t, "")
	resp, err = missing.Test(httptest.NewRequest(fiber.MethodGet, "/treasury", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
