// Package financing computes the fee waterfall and annualized return of an
// invoice financing offer.
package financing

import (
	"math"
	"math/big"
	"time"

	"github.com/invoicefi/reconciler/internal/invoice"
)

const (
	daysPerYear   = 365
	secondsPerDay = 86400

	// DefaultMaxDiscountBps rejects discounts above 50% as malformed.
	DefaultMaxDiscountBps = 5000
)

// Params are the platform fee parameters.
type Params struct {
	OriginationFeeBps int64 `json:"origination_fee_bps"`
	TakeRateBps       int64 `json:"take_rate_bps"`
	SettlementFee     int64 `json:"settlement_fee_micro"`
}

// Quote is the full waterfall for one offer. Amounts are micro-units.
type Quote struct {
	FaceValue                int64
	DiscountBps              int64
	DaysUntilDue             int64
	DiscountAmount           int64
	InvestorPays             int64
	OriginationFee           int64
	SupplierReceives         int64
	ExpectedTakeRateFee      int64
	SettlementFee            int64
	ExpectedInvestorReceives int64
	ExpectedNetProfit        int64
	// ExpectedAPY is a percentage. It is 0 when APYDefined is false.
	ExpectedAPY float64
	APYDefined  bool
}

// Calculate runs the waterfall. It is deterministic and performs no I/O.
// The APY is undefined when daysUntilDue <= 0 and zero when the investor pays nothing.
func Calculate(faceValue, discountBps, daysUntilDue int64, p Params) Quote {
	q := Quote{
		FaceValue:     faceValue,
		DiscountBps:   discountBps,
		DaysUntilDue:  daysUntilDue,
		SettlementFee: p.SettlementFee,
	}
	q.DiscountAmount = mulBps(faceValue, discountBps)
	q.InvestorPays = faceValue - q.DiscountAmount
	q.OriginationFee = mulBps(q.InvestorPays, p.OriginationFeeBps)
	q.SupplierReceives = q.InvestorPays - q.OriginationFee
	q.ExpectedTakeRateFee = mulBps(q.DiscountAmount, p.TakeRateBps)
	q.ExpectedInvestorReceives = faceValue - q.ExpectedTakeRateFee - p.SettlementFee
	q.ExpectedNetProfit = q.ExpectedInvestorReceives - q.InvestorPays

	if daysUntilDue <= 0 {
		return q
	}
	q.APYDefined = true
	q.ExpectedAPY = annualize(q.ExpectedNetProfit, q.InvestorPays, float64(daysUntilDue))
	return q
}

// RealizedAPY annualizes the return of a settled investment over the time it
// was actually held. ok is false when the holding period is not positive or
// nothing was invested; such invoices are excluded from averages.
func RealizedAPY(investment, returned int64, financedAt, paidAt time.Time) (apy float64, ok bool) {
	if investment == 0 || financedAt.IsZero() || paidAt.IsZero() {
		return 0, false
	}
	daysHeld := float64(paidAt.Unix()-financedAt.Unix()) / secondsPerDay
	if daysHeld <= 0 {
		return 0, false
	}
	return annualize(returned-investment, investment, daysHeld), true
}

func annualize(profit, principal int64, days float64) float64 {
	if principal == 0 || days <= 0 {
		return 0
	}
	apy := float64(profit) / float64(principal) * (daysPerYear / days) * 100
	if math.IsNaN(apy) || math.IsInf(apy, 0) {
		return 0
	}
	return apy
}

// mulBps returns amount*bps/10000 truncated toward zero without intermediate overflow.
func mulBps(amount, bps int64) int64 {
	if amount == 0 || bps == 0 {
		return 0
	}
	if p, ok := mulFits(amount, bps); ok {
		return p / invoice.MaxBps
	}
	r := new(big.Int).Mul(big.NewInt(amount), big.NewInt(bps))
	r.Quo(r, big.NewInt(invoice.MaxBps))
	if !r.IsInt64() {
		if r.Sign() < 0 {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return r.Int64()
}

func mulFits(a, b int64) (int64, bool) {
	p := a * b
	if a != 0 && (p/a != b || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64)) {
		return 0, false
	}
	return p, true
}
