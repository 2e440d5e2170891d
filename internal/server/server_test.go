package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/invoicefi/reconciler/internal/cache"
	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/config"
	"github.com/invoicefi/reconciler/internal/logging"
	"github.com/invoicefi/reconciler/internal/metrics"
	"github.com/invoicefi/reconciler/internal/routes"
)

func newTestServer(t *testing.T) (*Server, chain.Reader) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	mem := chain.NewInMemory()
	cfg := config.Config{
		AppName:             "reconciler-test",
		PackageID:           "0xpkg",
		InvoiceModule:       "invoice",
		InvoiceCreatedEvent: "InvoiceCreated",
		BusinessCapType:     "0xpkg::business::BusinessCap",
		DiscoveryPageSize:   100,
		DiscoveryMaxPages:   1,
		TimelineMaxPages:    5,
		FetchConcurrency:    4,
		OriginationFeeBps:   100,
		TakeRateBps:         1000,
		SettlementFeeMicro:  10,
		MaxDiscountBps:      5000,
	}
	srv, err := New(routes.Deps{
		Cfg:      cfg,
		Reader:   chain.Instrument(mem, m),
		Store:    cache.NewMemoryStore(),
		Logger:   logging.Discard(),
		Metrics:  m,
		Registry: reg,
	})
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	return srv, mem
}

func do(t *testing.T, srv *Server, method, path, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	status, body := do(t, srv, http.MethodGet, "/healthz", "")
	if status != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", status, body)
	}
	if !strings.Contains(string(body), `"ledger":"ok"`) {
		t.Fatalf("expected ledger ok in %s", body)
	}
}

func TestInvoiceFlowAndMetrics(t *testing.T) {
	srv, mem := newTestServer(t)
	chain.PutObject(mem, chain.Object{
		ID:     "0x1",
		Type:   "0xpkg::invoice::Invoice",
		Fields: chain.Fields(map[string]any{"issuer": "0xa", "buyer": "0xb", "amount": "10000", "discount_rate": "200", "status": 0}),
	})
	chain.AppendEvent(mem, chain.Event{
		Type:     "0xpkg::invoice::InvoiceCreated",
		TxDigest: "tx1",
		Payload:  chain.Fields(map[string]any{"invoice_id": "0x1"}),
	})

	status, body := do(t, srv, http.MethodGet, "/api/v1/invoices", "")
	if status != http.StatusOK {
		t.Fatalf("list: expected 200 got %d: %s", status, body)
	}
	var list struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(body, &list); err != nil || list.Total != 1 {
		t.Fatalf("list: unexpected body %s (%v)", body, err)
	}

	status, body = do(t, srv, http.MethodGet, "/api/v1/analytics/summary", "")
	if status != http.StatusOK || !strings.Contains(string(body), `"total_invoices":1`) {
		t.Fatalf("summary: %d %s", status, body)
	}

	status, body = do(t, srv, http.MethodPost, "/api/v1/financing/quote", `{"face_value_micro":10000,"discount_bps":200,"days_until_due":60}`)
	if status != http.StatusOK {
		t.Fatalf("quote: expected 200 got %d: %s", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/metrics", "")
	if status != http.StatusOK || !strings.Contains(string(body), "reconciler_ledger_requests_total") {
		t.Fatalf("metrics: %d %s", status, body)
	}
}

func TestErrorsRenderAsJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	status, body := do(t, srv, http.MethodGet, "/api/v1/invoices/0x404", "")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", status)
	}
	var e map[string]any
	if err := json.Unmarshal(body, &e); err != nil || e["error"] == nil {
		t.Fatalf("expected json error body, got %s", body)
	}

	status, _ = do(t, srv, http.MethodPost, "/api/v1/admin/cache/reset", "")
	if status != http.StatusForbidden {
		t.Fatalf("admin reset without hash: expected 403 got %d", status)
	}
}
