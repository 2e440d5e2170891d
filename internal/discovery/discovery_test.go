package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoicefi/reconciler/internal/cache"
	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/logging"
	"github.com/invoicefi/reconciler/internal/notification"
)

const createdType = "0xpkg::invoice::InvoiceCreated"

var testConfig = Config{
	PackageID:     "0xpkg",
	Module:        "invoice",
	EventName:     "InvoiceCreated",
	Retries:       2,
	RetryInterval: time.Millisecond,
}

func created(id, digest string) chain.Event {
	return chain.Event{
		Type:     createdType,
		TxDigest: digest,
		Payload:  chain.Fields(map[string]any{"invoice_id": id}),
	}
}

func newIndex(t *testing.T, cfg Config) (*Index, chain.Reader, *cache.Index, *notification.Recorder) {
	t.Helper()
	reader := chain.NewInMemory()
	idx := cache.NewIndex(cache.NewMemoryStore())
	rec := &notification.Recorder{}
	return New(reader, idx, cfg, logging.Discard(), rec, nil), reader, idx, rec
}

func TestDiscoverNewestFirstAndCachesIDs(t *testing.T) {
	ctx := context.Background()
	x, reader, idx, _ := newIndex(t, testConfig)
	chain.AppendEvent(reader, created("0x1", "tx1"), created("0x2", "tx2"), created("0x3", "tx3"))
	chain.AppendEvent(reader, chain.Event{Type: "0xpkg::invoice::InvoiceFinanced", Payload: chain.Fields(map[string]any{"invoice_id": "0x1"})})

	res, err := x.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x3", "0x2", "0x1"}, res.IDs)
	assert.Equal(t, SourceEvents, res.Source)
	assert.False(t, res.Truncated)
	assert.Equal(t, "tx2", res.Origins["0x2"])

	known, err := idx.KnownInvoiceIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"0x1", "0x2", "0x3"}, known)
	companion, err := idx.Companion(ctx, "0x1")
	require.NoError(t, err)
	assert.Equal(t, "tx1", companion.OriginTx)
}

func TestDiscoverDeduplicates(t *testing.T) {
	x, reader, _, _ := newIndex(t, testConfig)
	chain.AppendEvent(reader, created("0x1", "tx1"), created("0x1", "tx1b"), chain.Event{Type: createdType, Payload: chain.Fields(map[string]any{})})

	res, err := x.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0x1"}, res.IDs)
}

func TestDiscoverEmptyResultIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	x, _, idx, rec := newIndex(t, testConfig)
	require.NoError(t, idx.RememberInvoices(ctx, "0xold"))

	res, err := x.Discover(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.IDs)
	assert.Equal(t, SourceEvents, res.Source)
	assert.Empty(t, rec.Messages(notification.KindDiscoveryFallback))
}

func TestDiscoverFallsBackToCacheOnFailure(t *testing.T) {
	ctx := context.Background()
	x, reader, idx, rec := newIndex(t, testConfig)
	require.NoError(t, idx.RememberInvoices(ctx, "0xa", "0xb"))
	chain.FailEvents(reader, fmt.Errorf("%w: type mismatch", chain.ErrTransport))

	res, err := x.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xa", "0xb"}, res.IDs)
	assert.Equal(t, SourceCache, res.Source)
	assert.Len(t, rec.Messages(notification.KindDiscoveryFallback), 1)
	assert.Equal(t, 1+testConfig.Retries, chain.EventQueries(reader))
}

func TestDiscoverFailureWithEmptyCacheIsAnError(t *testing.T) {
	x, reader, _, _ := newIndex(t, testConfig)
	chain.FailEvents(reader, chain.ErrTransport)

	_, err := x.Discover(context.Background())
	assert.ErrorIs(t, err, chain.ErrTransport)
}

func TestDiscoverRequiresConfiguration(t *testing.T) {
	cfg := testConfig
	cfg.PackageID = ""
	x, reader, _, _ := newIndex(t, cfg)

	_, err := x.Discover(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Zero(t, chain.EventQueries(reader))
}

func TestDiscoverFollowsCursorUpToMaxPages(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig
	cfg.PageSize = 2
	cfg.MaxPages = 2
	x, reader, idx, _ := newIndex(t, cfg)
	require.NoError(t, idx.RememberInvoices(ctx, "0x0"))
	for i := 1; i <= 5; i++ {
		chain.AppendEvent(reader, created(fmt.Sprintf("0x%d", i), fmt.Sprintf("tx%d", i)))
	}

	res, err := x.Discover(ctx)
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, SourceMerged, res.Source)
	assert.Equal(t, []string{"0x5", "0x4", "0x3", "0x2", "0x0"}, res.IDs)
}

func TestDiscoverIsIdempotent(t *testing.T) {
	x, reader, _, _ := newIndex(t, testConfig)
	chain.AppendEvent(reader, created("0x1", "tx1"), created("0x2", "tx2"))

	first, err := x.Discover(context.Background())
	require.NoError(t, err)
	second, err := x.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDiscoverStopsRetryingWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	x, reader, _, _ := newIndex(t, testConfig)
	chain.FailEvents(reader, context.Canceled)

	_, err := x.Discover(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, chain.EventQueries(reader))
}
