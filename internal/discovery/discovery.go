// Package discovery builds the set of invoice identifiers worth resolving
// from the creation-event stream, falling back to the identifier cache when
// the stream cannot be read.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/invoicefi/reconciler/internal/cache"
	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/invoice"
	"github.com/invoicefi/reconciler/internal/metrics"
	"github.com/invoicefi/reconciler/internal/notification"
)

// ErrNotConfigured indicates the package or event identifiers are missing.
var ErrNotConfigured = errors.New("invoice package not configured")

const (
	// DefaultPageSize is the number of most recent creation events read per page.
	DefaultPageSize = 100
	maxPageSize     = 1000
)

// Source tells where a discovery result came from.
type Source string

const (
	SourceEvents Source = "events"
	SourceCache  Source = "cache"
	// SourceMerged marks an incomplete event scan topped up from the cache.
	SourceMerged Source = "events+cache"
)

// Config selects the creation events and bounds the scan.
type Config struct {
	PackageID string
	Module    string
	EventName string
	PageSize  int
	// MaxPages bounds cursor pagination. One page reproduces the
	// newest-100 behavior; older invoices stay invisible beyond it.
	MaxPages      int
	Retries       int
	RetryInterval time.Duration
}

// EventType is the fully qualified creation event type.
func (c Config) EventType() string {
	return c.PackageID + "::" + c.Module + "::" + c.EventName
}

// Validate reports missing identifiers as ErrNotConfigured.
func (c Config) Validate() error {
	switch {
	case c.PackageID == "":
		return fmt.Errorf("%w: package id is empty", ErrNotConfigured)
	case c.Module == "":
		return fmt.Errorf("%w: module is empty", ErrNotConfigured)
	case c.EventName == "":
		return fmt.Errorf("%w: creation event name is empty", ErrNotConfigured)
	}
	return nil
}

// Result is one discovery pass. IDs are newest first and unique.
type Result struct {
	IDs []string
	// Origins maps invoice ids to the digest of their creation transaction.
	Origins map[string]string
	Source  Source
	// Truncated is set when older creation events were not read.
	Truncated bool
}

// Index discovers invoice identifiers.
type Index struct {
	reader   chain.Reader
	cache    *cache.Index
	cfg      Config
	logger   *slog.Logger
	notifier notification.Notifier
	metrics  *metrics.Metrics
}

// New constructs a discovery index. Configuration is validated on every pass.
func New(reader chain.Reader, idx *cache.Index, cfg Config, logger *slog.Logger, notifier notification.Notifier, m *metrics.Metrics) *Index {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize > maxPageSize {
		cfg.PageSize = maxPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{reader: reader, cache: idx, cfg: cfg, logger: logger, notifier: notifier, metrics: m}
}

// Discover returns the current invoice identifiers. A successful scan that
// finds nothing is authoritative; only a failed scan falls back to the cache.
func (x *Index) Discover(ctx context.Context) (Result, error) {
	if err := x.cfg.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{Origins: map[string]string{}, Source: SourceEvents}
	seen := map[string]struct{}{}
	q := chain.EventQuery{EventType: x.cfg.EventType(), Limit: x.cfg.PageSize, Descending: true}

	for page := 0; page < x.cfg.MaxPages; page++ {
		p, err := x.queryPage(ctx, q)
		if err != nil {
			if page == 0 {
				return x.fallback(ctx, err)
			}
			x.logger.WarnContext(ctx, "creation event scan stopped early", "page", page, "error", err)
			res.Truncated = true
			break
		}

		for _, ev := range p.Events {
			id := invoice.EventInvoiceID(ev.Payload)
			if id == "" {
				x.logger.DebugContext(ctx, "creation event without invoice id", "tx_digest", ev.TxDigest)
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			res.IDs = append(res.IDs, id)
			if ev.TxDigest != "" {
				res.Origins[id] = ev.TxDigest
			}
		}

		if !p.HasNext || p.NextCursor == nil {
			break
		}
		if page == x.cfg.MaxPages-1 {
			res.Truncated = true
			break
		}
		q.Cursor = p.NextCursor
	}

	x.remember(ctx, res)

	if res.Truncated {
		res = x.topUp(ctx, res, seen)
	}
	x.metrics.Discovered(len(res.IDs))
	return res, nil
}

func (x *Index) queryPage(ctx context.Context, q chain.EventQuery) (chain.EventPage, error) {
	var page chain.EventPage
	op := func() error {
		p, err := x.reader.QueryEvents(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		page = p
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = x.cfg.RetryInterval
	policy.MaxElapsedTime = 0
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(x.cfg.Retries)), ctx))
	return page, err
}

// fallback serves the cached id list after a failed scan. With nothing
// cached the scan error is returned so callers never mistake it for "empty".
func (x *Index) fallback(ctx context.Context, scanErr error) (Result, error) {
	if x.cache == nil {
		return Result{}, fmt.Errorf("query creation events: %w", scanErr)
	}
	ids, err := x.cache.KnownInvoiceIDs(ctx)
	if err != nil {
		x.logger.ErrorContext(ctx, "identifier cache unreadable", "error", err)
		return Result{}, fmt.Errorf("query creation events: %w", scanErr)
	}
	if len(ids) == 0 {
		return Result{}, fmt.Errorf("query creation events: %w", scanErr)
	}

	x.logger.WarnContext(ctx, "creation event query failed, serving cached ids", "error", scanErr, "cached", len(ids))
	x.metrics.Fallback()
	notification.Notify(ctx, x.notifier, notification.Message{
		Kind:    notification.KindDiscoveryFallback,
		Subject: x.cfg.EventType(),
		Body:    scanErr.Error(),
	})

	out := Result{Origins: map[string]string{}, Source: SourceCache}
	seen := map[string]struct{}{}
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out.IDs = append(out.IDs, id)
	}
	x.metrics.Discovered(len(out.IDs))
	return out, nil
}

// topUp appends cached ids older than the scanned window.
func (x *Index) topUp(ctx context.Context, res Result, seen map[string]struct{}) Result {
	if x.cache == nil {
		return res
	}
	ids, err := x.cache.KnownInvoiceIDs(ctx)
	if err != nil {
		x.logger.WarnContext(ctx, "identifier cache unreadable", "error", err)
		return res
	}
	added := 0
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		res.IDs = append(res.IDs, id)
		added++
	}
	if added > 0 {
		res.Source = SourceMerged
	}
	return res
}

func (x *Index) remember(ctx context.Context, res Result) {
	if x.cache == nil || len(res.IDs) == 0 {
		return
	}
	if err := x.cache.RememberInvoices(ctx, res.IDs...); err != nil {
		x.logger.WarnContext(ctx, "cache invoice ids", "error", err)
	}
	for id, digest := range res.Origins {
		if err := x.cache.SetOrigin(ctx, id, digest); err != nil {
			x.logger.WarnContext(ctx, "cache invoice origin", "invoice_id", id, "error", err)
		}
	}
}
