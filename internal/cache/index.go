package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	knownInvoicesKey = "known_invoice_ids"
	knownFundingKey  = "known_funding_ids"
	companionPrefix  = "companion:"
)

// errCorrupt marks a stored value that no longer decodes. Such entries are
// overwritten on the next write; store failures are not.
var errCorrupt = errors.New("corrupt cache entry")

// Companion maps one invoice to its companion objects and creation transaction.
type Companion struct {
	EscrowID  string `json:"escrow_id,omitempty"`
	FundingID string `json:"funding_id,omitempty"`
	OriginTx  string `json:"origin_tx,omitempty"`
}

// Index is the typed view over a Store. Each key is read-then-written with
// last-writer-wins semantics.
type Index struct {
	store Store
}

// NewIndex wraps store.
func NewIndex(store Store) *Index {
	return &Index{store: store}
}

// KnownInvoiceIDs returns previously discovered invoice ids, nil when none.
func (x *Index) KnownInvoiceIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := x.load(ctx, knownInvoicesKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// RememberInvoices merges ids into the known invoice list.
func (x *Index) RememberInvoices(ctx context.Context, ids ...string) error {
	return x.mergeList(ctx, knownInvoicesKey, ids)
}

// KnownFundingIDs returns previously seen funding object ids.
func (x *Index) KnownFundingIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := x.load(ctx, knownFundingKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// RememberFunding merges ids into the known funding list.
func (x *Index) RememberFunding(ctx context.Context, ids ...string) error {
	return x.mergeList(ctx, knownFundingKey, ids)
}

// Companion returns the cached companion mapping, zero when absent.
func (x *Index) Companion(ctx context.Context, invoiceID string) (Companion, error) {
	var c Companion
	if err := x.load(ctx, companionPrefix+invoiceID, &c); err != nil {
		return Companion{}, err
	}
	return c, nil
}

// SetEscrow records the escrow id of an invoice. An empty id clears it, and a
// mapping left with no ids is deleted.
func (x *Index) SetEscrow(ctx context.Context, invoiceID, escrowID string) error {
	return x.updateCompanion(ctx, invoiceID, func(c *Companion) { c.EscrowID = escrowID })
}

// SetFunding records the funding id of an invoice. An empty id clears it.
func (x *Index) SetFunding(ctx context.Context, invoiceID, fundingID string) error {
	return x.updateCompanion(ctx, invoiceID, func(c *Companion) { c.FundingID = fundingID })
}

// SetOrigin records the transaction that created an invoice.
func (x *Index) SetOrigin(ctx context.Context, invoiceID, digest string) error {
	return x.updateCompanion(ctx, invoiceID, func(c *Companion) { c.OriginTx = digest })
}

// Reset drops every cached entry.
func (x *Index) Reset(ctx context.Context) error {
	return x.store.Clear(ctx)
}

func (x *Index) updateCompanion(ctx context.Context, invoiceID string, apply func(*Companion)) error {
	key := companionPrefix + invoiceID
	var current Companion
	if err := x.load(ctx, key, &current); err != nil {
		if !errors.Is(err, errCorrupt) {
			return err
		}
		current = Companion{}
	}
	next := current
	apply(&next)
	if next == current {
		return nil
	}
	if next == (Companion{}) {
		return x.store.Delete(ctx, key)
	}
	return x.save(ctx, key, next)
}

func (x *Index) mergeList(ctx context.Context, key string, ids []string) error {
	var current []string
	if err := x.load(ctx, key, &current); err != nil {
		if !errors.Is(err, errCorrupt) {
			return err
		}
		current = nil
	}
	seen := make(map[string]struct{}, len(current)+len(ids))
	for _, id := range current {
		seen[id] = struct{}{}
	}
	merged := current
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	if len(merged) == len(current) {
		return nil
	}
	return x.save(ctx, key, merged)
}

func (x *Index) load(ctx context.Context, key string, dst any) error {
	raw, err := x.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w %s: %v", errCorrupt, key, err)
	}
	return nil
}

func (x *Index) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", key, err)
	}
	return x.store.Set(ctx, key, raw)
}
