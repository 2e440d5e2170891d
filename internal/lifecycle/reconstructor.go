package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/invoicefi/reconciler/internal/cache"
	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/discovery"
	"github.com/invoicefi/reconciler/internal/invoice"
	"github.com/invoicefi/reconciler/internal/metrics"
	"github.com/invoicefi/reconciler/internal/notification"
)

// ErrCompanionNotFound is recoverable: the companion may not exist yet, e.g.
// an escrow the buyer has not funded.
var ErrCompanionNotFound = errors.New("companion object not found")

const (
	defaultPageSize = 100
	defaultMaxPages = 10

	sourceInvoice = "invoice"
	sourceCache   = "cache"
	sourceScan    = "transaction_scan"
	sourceKnown   = "known_set"
)

// Config locates the invoice package events and companion types.
type Config struct {
	PackageID string
	Module    string
	PageSize  int
	MaxPages  int
	// EscrowType and FundingType are struct names, matched against the last
	// segment of created object types.
	EscrowType  string
	FundingType string
}

// Validate reports missing identifiers as discovery.ErrNotConfigured.
func (c Config) Validate() error {
	if c.PackageID == "" || c.Module == "" {
		return fmt.Errorf("%w: package id and module are required", discovery.ErrNotConfigured)
	}
	return nil
}

// Reconstructor rebuilds invoice history and companions from the ledger.
type Reconstructor struct {
	reader   chain.Reader
	cache    *cache.Index
	cfg      Config
	logger   *slog.Logger
	notifier notification.Notifier
	metrics  *metrics.Metrics
}

// New constructs a reconstructor.
func New(reader chain.Reader, idx *cache.Index, cfg Config, logger *slog.Logger, notifier notification.Notifier, m *metrics.Metrics) *Reconstructor {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.EscrowType == "" {
		cfg.EscrowType = "Escrow"
	}
	if cfg.FundingType == "" {
		cfg.FundingType = "Funding"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconstructor{reader: reader, cache: idx, cfg: cfg, logger: logger, notifier: notifier, metrics: m}
}

type companionKind struct {
	name     string
	typeName string
	onLedger func(invoice.Invoice) string
	cached   func(cache.Companion) string
	store    func(ctx context.Context, x *cache.Index, invoiceID, id string) error
	forget   func(ctx context.Context, x *cache.Index, invoiceID string) error
}

func (r *Reconstructor) escrowKind() companionKind {
	return companionKind{
		name:     "escrow",
		typeName: r.cfg.EscrowType,
		onLedger: func(inv invoice.Invoice) string { return inv.EscrowID },
		cached:   func(c cache.Companion) string { return c.EscrowID },
		store: func(ctx context.Context, x *cache.Index, invoiceID, id string) error {
			return x.SetEscrow(ctx, invoiceID, id)
		},
		forget: func(ctx context.Context, x *cache.Index, invoiceID string) error {
			return x.SetEscrow(ctx, invoiceID, "")
		},
	}
}

func (r *Reconstructor) fundingKind() companionKind {
	return companionKind{
		name:     "funding",
		typeName: r.cfg.FundingType,
		onLedger: func(inv invoice.Invoice) string { return inv.FundingID },
		cached:   func(c cache.Companion) string { return c.FundingID },
		store: func(ctx context.Context, x *cache.Index, invoiceID, id string) error {
			if err := x.RememberFunding(ctx, id); err != nil {
				return err
			}
			return x.SetFunding(ctx, invoiceID, id)
		},
		forget: func(ctx context.Context, x *cache.Index, invoiceID string) error {
			return x.SetFunding(ctx, invoiceID, "")
		},
	}
}

// ResolveEscrow finds the escrow of inv.
func (r *Reconstructor) ResolveEscrow(ctx context.Context, inv invoice.Invoice) (invoice.Escrow, error) {
	obj, err := r.resolve(ctx, inv, r.escrowKind())
	if err != nil {
		return invoice.Escrow{}, err
	}
	return invoice.DecodeEscrow(obj)
}

// ResolveFunding finds the funding record of inv.
func (r *Reconstructor) ResolveFunding(ctx context.Context, inv invoice.Invoice) (invoice.Funding, error) {
	obj, err := r.resolve(ctx, inv, r.fundingKind())
	if err != nil {
		return invoice.Funding{}, err
	}
	return invoice.DecodeFunding(obj)
}

// resolve tries, in order: the id on the invoice object, the cached id, the
// created objects of the invoice's transactions, and for funding the known
// funding set. Every hit is verified against the ledger and written back. Only
// objects created by the invoice's own transactions may omit the invoice id.
func (r *Reconstructor) resolve(ctx context.Context, inv invoice.Invoice, kind companionKind) (chain.Object, error) {
	var cached cache.Companion
	if r.cache != nil {
		c, err := r.cache.Companion(ctx, inv.ID)
		if err != nil {
			r.logger.WarnContext(ctx, "companion cache unreadable", "invoice_id", inv.ID, "error", err)
		}
		cached = c
	}
	cachedID := kind.cached(cached)

	if id := kind.onLedger(inv); id != "" {
		obj, ok, err := r.verify(ctx, id, inv.ID, kind, false)
		if err != nil {
			return chain.Object{}, err
		}
		if ok {
			return r.found(ctx, inv.ID, obj, cachedID, kind, sourceInvoice), nil
		}
	}

	if cachedID != "" {
		obj, ok, err := r.verify(ctx, cachedID, inv.ID, kind, false)
		if err != nil {
			return chain.Object{}, err
		}
		if ok {
			r.metrics.Companion(kind.name, sourceCache)
			return obj, nil
		}
		r.stale(ctx, inv.ID, cachedID, kind)
	}

	obj, ok, err := r.scanTransactions(ctx, inv, cached.OriginTx, kind)
	if err != nil {
		return chain.Object{}, err
	}
	if ok {
		return r.found(ctx, inv.ID, obj, cachedID, kind, sourceScan), nil
	}

	if kind.name == "funding" {
		obj, ok, err := r.scanKnownFunding(ctx, inv.ID, kind)
		if err != nil {
			return chain.Object{}, err
		}
		if ok {
			return r.found(ctx, inv.ID, obj, cachedID, kind, sourceKnown), nil
		}
	}

	if r.cache != nil && cachedID != "" {
		if err := kind.forget(ctx, r.cache, inv.ID); err != nil {
			r.logger.WarnContext(ctx, "drop stale companion id", "invoice_id", inv.ID, "kind", kind.name, "error", err)
		}
	}
	r.metrics.Companion(kind.name, "missing")
	return chain.Object{}, fmt.Errorf("%w: no %s for invoice %s yet", ErrCompanionNotFound, kind.name, inv.ID)
}

// verify checks that id exists, has the companion type and names invoiceID.
// unnamedOK also accepts an object that names no invoice at all.
func (r *Reconstructor) verify(ctx context.Context, id, invoiceID string, kind companionKind, unnamedOK bool) (chain.Object, bool, error) {
	obj, err := r.reader.GetObject(ctx, id)
	if errors.Is(err, chain.ErrNotFound) {
		return chain.Object{}, false, nil
	}
	if err != nil {
		return chain.Object{}, false, fmt.Errorf("read %s %s: %w", kind.name, id, err)
	}
	if !r.belongs(obj, invoiceID, kind, unnamedOK) {
		return chain.Object{}, false, nil
	}
	return obj, true, nil
}

func (r *Reconstructor) belongs(obj chain.Object, invoiceID string, kind companionKind, unnamedOK bool) bool {
	if chain.TypeName(obj.Type) != kind.typeName {
		return false
	}
	owner := invoice.CompanionInvoiceID(obj.Fields)
	if owner == "" {
		return unnamedOK
	}
	return invoice.SameAddress(owner, invoiceID)
}

func (r *Reconstructor) scanTransactions(ctx context.Context, inv invoice.Invoice, cachedOrigin string, kind companionKind) (chain.Object, bool, error) {
	digests := uniqueNonEmpty(cachedOrigin, inv.OriginTx, inv.LastTx)
	obj, ok, err := r.scanDigests(ctx, inv.ID, digests, kind)
	if err != nil || ok {
		return obj, ok, err
	}

	events, _, err := r.invoiceEvents(ctx, inv.ID)
	if err != nil {
		r.logger.WarnContext(ctx, "lifecycle events unavailable for companion scan", "invoice_id", inv.ID, "error", err)
		return chain.Object{}, false, nil
	}
	tried := make(map[string]struct{}, len(digests))
	for _, d := range digests {
		tried[d] = struct{}{}
	}
	var more []string
	for _, ev := range events {
		if _, done := tried[ev.TxDigest]; done || ev.TxDigest == "" {
			continue
		}
		tried[ev.TxDigest] = struct{}{}
		more = append(more, ev.TxDigest)
	}
	return r.scanDigests(ctx, inv.ID, more, kind)
}

func (r *Reconstructor) scanDigests(ctx context.Context, invoiceID string, digests []string, kind companionKind) (chain.Object, bool, error) {
	for _, digest := range digests {
		tx, err := r.reader.GetTransaction(ctx, digest)
		if err != nil {
			if ctx.Err() != nil {
				return chain.Object{}, false, ctx.Err()
			}
			r.logger.WarnContext(ctx, "transaction unreadable, skipped", "tx_digest", digest, "error", err)
			continue
		}
		for _, created := range tx.Created {
			if chain.TypeName(created.Type) != kind.typeName {
				continue
			}
			obj, ok, err := r.verify(ctx, created.ID, invoiceID, kind, true)
			if err != nil {
				r.logger.WarnContext(ctx, "created object unreadable, skipped", "object_id", created.ID, "error", err)
				continue
			}
			if ok {
				return obj, true, nil
			}
		}
	}
	return chain.Object{}, false, nil
}

// scanKnownFunding matches the working set of known funding objects by invoice id.
func (r *Reconstructor) scanKnownFunding(ctx context.Context, invoiceID string, kind companionKind) (chain.Object, bool, error) {
	if r.cache == nil {
		return chain.Object{}, false, nil
	}
	ids, err := r.cache.KnownFundingIDs(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "known funding ids unreadable", "error", err)
		return chain.Object{}, false, nil
	}
	for _, id := range ids {
		obj, err := r.reader.GetObject(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return chain.Object{}, false, ctx.Err()
			}
			continue
		}
		if chain.TypeName(obj.Type) == kind.typeName && invoice.CompanionInvoiceID(obj.Fields) == invoiceID {
			return obj, true, nil
		}
	}
	return chain.Object{}, false, nil
}

func (r *Reconstructor) found(ctx context.Context, invoiceID string, obj chain.Object, cachedID string, kind companionKind, source string) chain.Object {
	r.metrics.Companion(kind.name, source)
	if r.cache != nil && obj.ID != cachedID {
		if err := kind.store(ctx, r.cache, invoiceID, obj.ID); err != nil {
			r.logger.WarnContext(ctx, "cache companion id", "invoice_id", invoiceID, "kind", kind.name, "error", err)
		}
	}
	return obj
}

func (r *Reconstructor) stale(ctx context.Context, invoiceID, cachedID string, kind companionKind) {
	r.metrics.Stale(kind.name)
	r.logger.InfoContext(ctx, "cached companion id is stale", "invoice_id", invoiceID, "kind", kind.name, "cached_id", cachedID)
	notification.Notify(ctx, r.notifier, notification.Message{
		Kind:    notification.KindCacheStale,
		Subject: invoiceID,
		Body:    fmt.Sprintf("%s %s no longer matches the ledger", kind.name, cachedID),
	})
}

func uniqueNonEmpty(values ...string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
