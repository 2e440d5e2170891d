package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/invoice"
	"github.com/invoicefi/reconciler/internal/notification"
)

// Transition is one replayed status change.
type Transition struct {
	From      invoice.Status `json:"from"`
	To        invoice.Status `json:"to"`
	EventType string         `json:"event_type"`
	TxDigest  string         `json:"tx_digest"`
	Sender    string         `json:"sender,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	// Allowed is false when the state machine forbids the step; the step is
	// still reported because the ledger recorded it.
	Allowed bool `json:"allowed"`
}

// Timeline replays the package events that mention invoiceID in ledger order.
// It scans at most MaxPages pages; Complete is false when it stopped early.
func (r *Reconstructor) Timeline(ctx context.Context, invoiceID string) (transitions []Transition, complete bool, err error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, false, err
	}

	events, complete, err := r.invoiceEvents(ctx, invoiceID)
	if err != nil {
		return nil, false, err
	}

	observed := invoice.StatusCreated
	for _, ev := range events {
		to, ok := Classify(ev.Type)
		if !ok {
			continue
		}
		from := observed
		if to == invoice.StatusPaid {
			from = invoice.StatusFinanced
		}
		ts := ev.Timestamp
		if ts.IsZero() {
			// events without a checkpoint time may still carry one in the payload
			ts = invoice.EventTime(ev.Payload, "timestamp", "timestamp_ms")
		}
		t := Transition{
			From:      from,
			To:        to,
			EventType: ev.Type,
			TxDigest:  ev.TxDigest,
			Sender:    ev.Sender,
			Timestamp: ts,
			Allowed:   invoice.CanTransition(from, to),
		}
		if !t.Allowed {
			r.logger.WarnContext(ctx, "replayed transition not allowed", "invoice_id", invoiceID, "from", from.String(), "to", to.String(), "tx_digest", ev.TxDigest)
			notification.Notify(ctx, r.notifier, notification.Message{
				Kind:    notification.KindTransitionAnomaly,
				Subject: invoiceID,
				Body:    fmt.Sprintf("%s -> %s in %s", from, to, ev.TxDigest),
			})
		}
		transitions = append(transitions, t)
		observed = to
	}
	return transitions, complete, nil
}

// invoiceEvents returns the package module events whose payload names invoiceID, ascending.
func (r *Reconstructor) invoiceEvents(ctx context.Context, invoiceID string) ([]chain.Event, bool, error) {
	q := chain.EventQuery{Package: r.cfg.PackageID, Module: r.cfg.Module, Limit: r.cfg.PageSize}
	var out []chain.Event
	for page := 0; page < r.cfg.MaxPages; page++ {
		p, err := r.reader.QueryEvents(ctx, q)
		if err != nil {
			return nil, false, fmt.Errorf("query events for %s: %w", invoiceID, err)
		}
		for _, ev := range p.Events {
			if invoice.EventInvoiceID(ev.Payload) == invoiceID {
				out = append(out, ev)
			}
		}
		if !p.HasNext || p.NextCursor == nil {
			return out, true, nil
		}
		q.Cursor = p.NextCursor
	}
	return out, false, nil
}
