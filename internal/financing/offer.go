package financing

import (
	"fmt"

	"github.com/invoicefi/reconciler/internal/invoice"
)

// Offer is an investor's proposed purchase of an invoice.
type Offer struct {
	FaceValue    int64
	DiscountBps  int64
	DaysUntilDue int64
}

// ValidateOffer rejects offers that must not be submitted and returns the
// quote of those that may. Errors are *invoice.ValidationError.
func ValidateOffer(o Offer, p Params, maxDiscountBps int64) (Quote, error) {
	if maxDiscountBps <= 0 {
		maxDiscountBps = DefaultMaxDiscountBps
	}

	verr := &invoice.ValidationError{}
	if o.FaceValue < 0 {
		verr.Add("face_value", "must not be negative")
	}
	switch {
	case o.DiscountBps <= 0:
		verr.Add("discount_bps", "must be positive")
	case o.DiscountBps > maxDiscountBps:
		verr.Add("discount_bps", fmt.Sprintf("must not exceed %d bps", maxDiscountBps))
	}
	if o.DaysUntilDue <= 0 {
		verr.Add("days_until_due", "must be positive")
	}
	if err := verr.Err(); err != nil {
		return Quote{}, err
	}

	q := Calculate(o.FaceValue, o.DiscountBps, o.DaysUntilDue, p)
	if !q.APYDefined {
		verr.Add("expected_apy", "undefined for the given term")
	} else if q.ExpectedAPY < 0 {
		verr.Add("expected_apy", "offer yields a negative return")
	}
	if err := verr.Err(); err != nil {
		return q, err
	}
	return q, nil
}

// ValidateParams checks fee parameters loaded from configuration or the treasury.
func ValidateParams(p Params) error {
	verr := &invoice.ValidationError{}
	if p.OriginationFeeBps < 0 || p.OriginationFeeBps > invoice.MaxBps {
		verr.Add("origination_fee_bps", fmt.Sprintf("must be within 0..%d", invoice.MaxBps))
	}
	if p.TakeRateBps < 0 || p.TakeRateBps > invoice.MaxBps {
		verr.Add("take_rate_bps", fmt.Sprintf("must be within 0..%d", invoice.MaxBps))
	}
	if p.SettlementFee < 0 {
		verr.Add("settlement_fee", "must not be negative")
	}
	return verr.Err()
}
