package chain

import (
	"context"
	"errors"
	"time"

	"github.com/invoicefi/reconciler/internal/metrics"
)

type instrumented struct {
	next    Reader
	metrics *metrics.Metrics
}

// Instrument wraps a reader so every call is counted and timed.
func Instrument(next Reader, m *metrics.Metrics) Reader {
	if m == nil {
		return next
	}
	return &instrumented{next: next, metrics: m}
}

func (r *instrumented) observe(method string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
	default:
		outcome = "error"
	}
	r.metrics.ObserveLedger(method, outcome, time.Since(start).Seconds())
}

func (r *instrumented) GetObject(ctx context.Context, id string) (Object, error) {
	start := time.Now()
	obj, err := r.next.GetObject(ctx, id)
	r.observe("get_object", start, err)
	return obj, err
}

func (r *instrumented) QueryEvents(ctx context.Context, q EventQuery) (EventPage, error) {
	start := time.Now()
	page, err := r.next.QueryEvents(ctx, q)
	r.observe("query_events", start, err)
	return page, err
}

func (r *instrumented) GetTransaction(ctx context.Context, digest string) (Transaction, error) {
	start := time.Now()
	tx, err := r.next.GetTransaction(ctx, digest)
	r.observe("get_transaction", start, err)
	return tx, err
}

func (r *instrumented) GetOwnedObjects(ctx context.Context, owner, structType string) ([]string, error) {
	start := time.Now()
	ids, err := r.next.GetOwnedObjects(ctx, owner, structType)
	r.observe("get_owned_objects", start, err)
	return ids, err
}
