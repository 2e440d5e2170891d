package invoices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoicefi/reconciler/internal/cache"
	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/discovery"
	"github.com/invoicefi/reconciler/internal/invoice"
	"github.com/invoicefi/reconciler/internal/lifecycle"
	"github.com/invoicefi/reconciler/internal/logging"
)

var (
	issuerA = "0x" + strings.Repeat("a", 64)
	issuerB = "0x" + strings.Repeat("b", 64)
	buyer   = "0x" + strings.Repeat("c", 64)
	now     = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc    *Service
	reader chain.Reader
	idx    *cache.Index
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reader := chain.NewInMemory()
	idx := cache.NewIndex(cache.NewMemoryStore())
	logger := logging.Discard()
	disc := discovery.New(reader, idx, discovery.Config{
		PackageID:     "0xpkg",
		Module:        "invoice",
		EventName:     "InvoiceCreated",
		RetryInterval: time.Millisecond,
	}, logger, nil, nil)
	recon := lifecycle.New(reader, idx, lifecycle.Config{PackageID: "0xpkg", Module: "invoice"}, logger, nil, nil)
	svc := NewService(reader, disc, idx, recon, logger, nil, Options{Concurrency: 2, Now: func() time.Time { return now }})
	return fixture{svc: svc, reader: reader, idx: idx}
}

// seed stores an invoice object and its creation event.
func (f fixture) seed(id, issuer string, amount int64, status string, created time.Time) {
	chain.PutObject(f.reader, chain.Object{
		ID:   id,
		Type: "0xpkg::invoice::Invoice",
		Fields: chain.Fields(map[string]any{
			"issuer":        issuer,
			"buyer":         buyer,
			"amount":        fmt.Sprint(amount),
			"discount_rate": "200",
			"status":        status,
			"created_at":    fmt.Sprint(created.Unix()),
			"due_date":      fmt.Sprint(created.Add(60 * 24 * time.Hour).Unix()),
		}),
	})
	chain.AppendEvent(f.reader, chain.Event{
		Type:     "0xpkg::invoice::InvoiceCreated",
		TxDigest: "tx-" + id,
		Payload:  chain.Fields(map[string]any{"invoice_id": id}),
	})
}

func (f fixture) seedThree() {
	f.seed("0x1", issuerA, 1000, "CREATED", now.Add(-3*time.Hour))
	f.seed("0x2", issuerB, 3000, "FINANCED", now.Add(-2*time.Hour))
	f.seed("0x3", issuerA, 2000, "CREATED", now.Add(-1*time.Hour))
}

func ids(items []invoice.Invoice) []string {
	out := make([]string, 0, len(items))
	for _, inv := range items {
		out = append(out, inv.ID)
	}
	return out
}

func TestListDefaultsToNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.seedThree()

	page, err := f.svc.List(context.Background(), Criteria{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []string{"0x3", "0x2", "0x1"}, ids(page.Items))
	assert.Equal(t, discovery.SourceEvents, page.Source)
	assert.Equal(t, "tx-0x2", page.Items[1].OriginTx)
}

func TestListFiltersSortsAndPages(t *testing.T) {
	f := newFixture(t)
	f.seedThree()
	ctx := context.Background()

	page, err := f.svc.List(ctx, Criteria{Address: issuerA, SortBy: "amount", Order: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"0x1", "0x3"}, ids(page.Items))

	page, err = f.svc.List(ctx, Criteria{Status: "financed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"0x2"}, ids(page.Items))

	page, err = f.svc.List(ctx, Criteria{MinAmount: 1500, MaxAmount: 2500})
	require.NoError(t, err)
	assert.Equal(t, []string{"0x3"}, ids(page.Items))

	page, err = f.svc.List(ctx, Criteria{SortBy: "amount", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []string{"0x3"}, ids(page.Items))

	page, err = f.svc.List(ctx, Criteria{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 3, page.Total)
}

func TestListTieBreaksByID(t *testing.T) {
	f := newFixture(t)
	created := now.Add(-time.Hour)
	f.seed("0xb", issuerA, 1000, "CREATED", created)
	f.seed("0xa", issuerA, 1000, "CREATED", created)

	page, err := f.svc.List(context.Background(), Criteria{SortBy: "amount"})
	require.NoError(t, err)
	assert.Equal(t, []string{"0xa", "0xb"}, ids(page.Items))
}

func TestListRejectsBadCriteriaBeforeLedgerCalls(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.List(context.Background(), Criteria{
		Status:    "LOST",
		Address:   "nope",
		MinAmount: -1,
		SortBy:    "color",
		Order:     "sideways",
		Limit:     500,
		Offset:    -2,
	})
	var verr *invoice.ValidationError
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{"status", "address", "min_amount", "sort_by", "order", "limit", "offset"} {
		assert.Contains(t, verr.Fields, field)
	}
	assert.Equal(t, 0, chain.EventQueries(f.reader))
}

func TestListDropsUnreadableInvoices(t *testing.T) {
	f := newFixture(t)
	f.seedThree()
	chain.FailObject(f.reader, "0x2", fmt.Errorf("%w: connection reset", chain.ErrTransport))
	chain.AppendEvent(f.reader, chain.Event{
		Type:    "0xpkg::invoice::InvoiceCreated",
		Payload: chain.Fields(map[string]any{"invoice_id": "0x9"}),
	})

	page, err := f.svc.List(context.Background(), Criteria{})
	require.NoError(t, err)
	assert.Equal(t, []string{"0x3", "0x1"}, ids(page.Items))
}

func TestListDropsUndecodableInvoices(t *testing.T) {
	f := newFixture(t)
	f.seedThree()
	chain.PutObject(f.reader, chain.Object{
		ID:     "0x3",
		Type:   "0xpkg::invoice::Invoice",
		Fields: chain.Fields(map[string]any{"amount": "-5"}),
	})

	all, err := f.svc.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0x2", "0x1"}, ids(all))
}

func TestListIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedThree()
	ctx := context.Background()

	first, err := f.svc.List(ctx, Criteria{})
	require.NoError(t, err)
	second, err := f.svc.List(ctx, Criteria{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestListServesCacheWhenEventsFail(t *testing.T) {
	f := newFixture(t)
	f.seedThree()
	ctx := context.Background()
	_, err := f.svc.List(ctx, Criteria{})
	require.NoError(t, err)

	chain.FailEvents(f.reader, fmt.Errorf("%w: node down", chain.ErrTransport))
	page, err := f.svc.List(ctx, Criteria{})
	require.NoError(t, err)
	assert.Equal(t, discovery.SourceCache, page.Source)
	assert.Equal(t, 3, page.Total)
}

func TestListCanceled(t *testing.T) {
	f := newFixture(t)
	f.seedThree()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.List(ctx, Criteria{})
	assert.Error(t, err)
}

func TestGetDistinguishesNotFoundFromTransport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "0x404")
	assert.ErrorIs(t, err, chain.ErrNotFound)

	chain.FailObject(f.reader, "0x502", fmt.Errorf("%w: timeout", chain.ErrTransport))
	_, err = f.svc.Get(ctx, "0x502")
	assert.ErrorIs(t, err, chain.ErrTransport)
	assert.NotErrorIs(t, err, chain.ErrNotFound)

	_, err = f.svc.Get(ctx, "not-an-id")
	var verr *invoice.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGetReturnsTimeline(t *testing.T) {
	f := newFixture(t)
	f.seed("0x1", issuerA, 1000, "FINANCED", now.Add(-time.Hour))
	chain.AppendEvent(f.reader, chain.Event{
		Type:     "0xpkg::invoice::InvoiceFinanced",
		TxDigest: "txfin",
		Payload:  chain.Fields(map[string]any{"invoice_id": "0x1"}),
	})

	d, err := f.svc.Get(context.Background(), "0x1")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusFinanced, d.Invoice.Status)
	assert.True(t, d.TimelineComplete)
	require.Len(t, d.Timeline, 1)
	assert.Equal(t, "txfin", d.Timeline[0].TxDigest)
}

func TestGetDegradesWhenTimelineUnavailable(t *testing.T) {
	f := newFixture(t)
	f.seed("0x1", issuerA, 1000, "CREATED", now.Add(-time.Hour))
	chain.FailEvents(f.reader, fmt.Errorf("%w: node down", chain.ErrTransport))

	d, err := f.svc.Get(context.Background(), "0x1")
	require.NoError(t, err)
	assert.Equal(t, "0x1", d.Invoice.ID)
	assert.False(t, d.TimelineComplete)
}

func TestEscrowUsesDiscoveredOrigin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed("0x1", issuerA, 1000, "CREATED", now.Add(-time.Hour))
	chain.PutTransaction(f.reader, chain.Transaction{
		Digest:  "tx-0x1",
		Created: []chain.CreatedObject{{Type: "0xpkg::escrow::Escrow", ID: "0xe1"}},
	})
	chain.PutObject(f.reader, chain.Object{
		ID:     "0xe1",
		Type:   "0xpkg::escrow::Escrow",
		Fields: chain.Fields(map[string]any{"invoice_id": "0x1", "required_amount": "500"}),
	})
	_, err := f.svc.List(ctx, Criteria{})
	require.NoError(t, err)

	esc, err := f.svc.Escrow(ctx, "0x1")
	require.NoError(t, err)
	assert.Equal(t, "0xe1", esc.ID)
	assert.Equal(t, int64(500), esc.RequiredAmount)
}

func newApp(f fixture) *fiber.App {
	app := fiber.New()
	h := NewHandler(f.svc)
	app.Get("/invoices", h.List)
	app.Get("/invoices/:id", h.Get)
	app.Get("/invoices/:id/escrow", h.Escrow)
	app.Get("/invoices/:id/funding", h.Funding)
	return app
}

func TestHandlerStatusCodes(t *testing.T) {
	f := newFixture(t)
	f.seedThree()
	chain.FailObject(f.reader, "0x502", fmt.Errorf("%w: timeout", chain.ErrTransport))
	app := newApp(f)

	cases := []struct {
		path string
		want int
	}{
		{"/invoices", http.StatusOK},
		{"/invoices?limit=abc", http.StatusBadRequest},
		{"/invoices?status=LOST", http.StatusBadRequest},
		{"/invoices/0x1", http.StatusOK},
		{"/invoices/0x404", http.StatusNotFound},
		{"/invoices/0x502", http.StatusBadGateway},
		{"/invoices/0x1/escrow", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestHandlerListBody(t *testing.T) {
	f := newFixture(t)
	f.seedThree()
	app := newApp(f)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/invoices?sort_by=amount&order=desc&limit=2", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, 2, body.Limit)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "0x2", body.Items[0].ID)
	assert.Equal(t, int64(3000), body.Items[0].FaceValue)
	assert.Equal(t, 0.003, body.Items[0].FaceValueDisplay)
	assert.Equal(t, invoice.StatusFinanced, body.Items[0].Status)
	assert.Equal(t, int64(59), body.Items[0].DaysUntilDue)
}

func TestHandlerCompanionNotFoundIsRecoverable(t *testing.T) {
	f := newFixture(t)
	f.seed("0x1", issuerA, 1000, "CREATED", now.Add(-time.Hour))
	app := newApp(f)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/invoices/0x1/funding", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["recoverable"])
}
