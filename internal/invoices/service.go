// Package invoices serves reconstructed invoices: discovery, concurrent
// fetch, filtering and per-invoice detail.
package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/invoicefi/reconciler/internal/cache"
	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/discovery"
	"github.com/invoicefi/reconciler/internal/invoice"
	"github.com/invoicefi/reconciler/internal/lifecycle"
	"github.com/invoicefi/reconciler/internal/metrics"
)

const defaultConcurrency = 8

// Page is one slice of a listing. Total counts every match before paging.
type Page struct {
	Items     []invoice.Invoice
	Total     int
	Source    discovery.Source
	Truncated bool
}

// Detail is one invoice with its replayed history.
type Detail struct {
	Invoice          invoice.Invoice
	Timeline         []lifecycle.Transition
	TimelineComplete bool
}

// Options tunes the service.
type Options struct {
	Concurrency int
	Now         func() time.Time
}

// Service reconstructs invoices from the ledger.
type Service struct {
	reader      chain.Reader
	discovery   *discovery.Index
	cache       *cache.Index
	recon       *lifecycle.Reconstructor
	logger      *slog.Logger
	metrics     *metrics.Metrics
	concurrency int
	now         func() time.Time
}

// NewService constructs an invoice service.
func NewService(reader chain.Reader, disc *discovery.Index, idx *cache.Index, recon *lifecycle.Reconstructor, logger *slog.Logger, m *metrics.Metrics, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		reader:      reader,
		discovery:   disc,
		cache:       idx,
		recon:       recon,
		logger:      logger,
		metrics:     m,
		concurrency: opts.Concurrency,
		now:         opts.Now,
	}
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// List discovers, fetches and filters invoices. Invoices that cannot be read
// or decoded are dropped; the listing still succeeds.
func (s *Service) List(ctx context.Context, c Criteria) (Page, error) {
	q, err := c.compile()
	if err != nil {
		return Page{}, err
	}
	res, err := s.discovery.Discover(ctx)
	if err != nil {
		return Page{}, err
	}
	all, err := s.fetch(ctx, res)
	if err != nil {
		return Page{}, err
	}
	items, total := q.apply(all)
	return Page{Items: items, Total: total, Source: res.Source, Truncated: res.Truncated}, nil
}

// All returns every invoice that could be reconstructed, in discovery order.
func (s *Service) All(ctx context.Context) ([]invoice.Invoice, error) {
	res, err := s.discovery.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, res)
}

// Get reads one invoice and replays its timeline. A timeline that cannot be
// read is reported as incomplete rather than failing the read.
func (s *Service) Get(ctx context.Context, id string) (Detail, error) {
	inv, err := s.invoice(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	d := Detail{Invoice: inv}
	timeline, complete, err := s.recon.Timeline(ctx, inv.ID)
	switch {
	case errors.Is(err, discovery.ErrNotConfigured):
		return Detail{}, err
	case err != nil:
		s.logger.WarnContext(ctx, "timeline unavailable", "invoice_id", inv.ID, "error", err)
	default:
		d.Timeline = timeline
		d.TimelineComplete = complete
	}
	return d, nil
}

// Escrow resolves the escrow of invoice id.
func (s *Service) Escrow(ctx context.Context, id string) (invoice.Escrow, error) {
	inv, err := s.invoice(ctx, id)
	if err != nil {
		return invoice.Escrow{}, err
	}
	return s.recon.ResolveEscrow(ctx, inv)
}

// Funding resolves the funding record of invoice id.
func (s *Service) Funding(ctx context.Context, id string) (invoice.Funding, error) {
	inv, err := s.invoice(ctx, id)
	if err != nil {
		return invoice.Funding{}, err
	}
	return s.recon.ResolveFunding(ctx, inv)
}

func (s *Service) invoice(ctx context.Context, id string) (invoice.Invoice, error) {
	if err := invoice.ValidateAddress(id); err != nil {
		return invoice.Invoice{}, &invoice.ValidationError{Fields: map[string]string{"id": err.Error()}}
	}
	obj, err := s.reader.GetObject(ctx, id)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("read invoice %s: %w", id, err)
	}
	inv, err := invoice.DecodeInvoice(obj)
	if err != nil {
		return invoice.Invoice{}, err
	}

	if s.cache != nil {
		if c, err := s.cache.Companion(ctx, inv.ID); err == nil {
			inv.OriginTx = c.OriginTx
		}
		if err := s.cache.RememberInvoices(ctx, inv.ID); err != nil {
			s.logger.WarnContext(ctx, "cache invoice id", "invoice_id", inv.ID, "error", err)
		}
	}
	return inv, nil
}

// fetch reads the discovered objects concurrently. Each failure becomes an
// absent invoice; only cancellation fails the whole pass.
func (s *Service) fetch(ctx context.Context, res discovery.Result) ([]invoice.Invoice, error) {
	slots := make([]*invoice.Invoice, len(res.IDs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range res.IDs {
		i, id := i, id
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			inv, ok := s.fetchOne(ctx, id)
			if ok {
				inv.OriginTx = res.Origins[id]
				slots[i] = &inv
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]invoice.Invoice, 0, len(slots))
	for _, inv := range slots {
		if inv != nil {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (s *Service) fetchOne(ctx context.Context, id string) (invoice.Invoice, bool) {
	obj, err := s.reader.GetObject(ctx, id)
	if err != nil {
		reason := "transport"
		if errors.Is(err, chain.ErrNotFound) {
			reason = "not_found"
		}
		if ctx.Err() == nil {
			s.logger.WarnContext(ctx, "invoice dropped", "invoice_id", id, "reason", reason, "error", err)
			s.metrics.Dropped(reason)
		}
		return invoice.Invoice{}, false
	}
	inv, err := invoice.DecodeInvoice(obj)
	if err != nil {
		s.logger.WarnContext(ctx, "invoice dropped", "invoice_id", id, "reason", "decode", "error", err)
		s.metrics.Dropped("decode")
		return invoice.Invoice{}, false
	}
	return inv, true
}
