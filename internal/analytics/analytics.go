// Package analytics folds reconstructed invoices into portfolio and platform metrics.
package analytics

import (
	"time"

	"github.com/invoicefi/reconciler/internal/financing"
	"github.com/invoicefi/reconciler/internal/invoice"
)

// PortfolioMetrics summarises one financier's positions. Amounts are micro-units.
// Disputed and defaulted positions are reported apart from the success rate,
// which only weighs completed against active and completed positions.
type PortfolioMetrics struct {
	Address          string
	Active           int
	Completed        int
	Disputed         int
	Defaulted        int
	TotalInvested    int64
	ImpairedInvested int64
	TotalReturns     int64
	AverageAPY       float64
	SuccessRate      float64
}

// PlatformSummary summarises every known invoice.
type PlatformSummary struct {
	TotalInvoices       int
	FinancedCount       int
	PaidCount           int
	DefaultedCount      int
	TotalVolume         int64
	AvgTimeToFinance    time.Duration
	AvgTimeToSettlement time.Duration
	UniqueIssuers       int
	UniqueFinanciers    int
}

// Filter keeps the invoices in which address acts as issuer or financier.
func Filter(invoices []invoice.Invoice, address string) []invoice.Invoice {
	out := make([]invoice.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if invoice.SameAddress(inv.Issuer, address) || invoice.SameAddress(inv.Financier, address) {
			out = append(out, inv)
		}
	}
	return out
}

// Portfolio computes the metrics of the invoices address has financed. The
// purchase price of each position is recomputed from its face value and
// discount, and its return is the face value collected at settlement.
func Portfolio(invoices []invoice.Invoice, address string, p financing.Params) PortfolioMetrics {
	m := PortfolioMetrics{Address: address}
	var (
		apySum float64
		apyN   int
	)
	for _, inv := range invoices {
		if !invoice.SameAddress(inv.Financier, address) || !inv.IsFinanced() {
			continue
		}
		price := financing.Calculate(inv.FaceValue, inv.DiscountBps, 0, p).InvestorPays

		switch inv.Status {
		case invoice.StatusFinanced:
			m.Active++
			m.TotalInvested += price
		case invoice.StatusPaid:
			m.Completed++
			m.TotalInvested += price
			m.TotalReturns += inv.FaceValue
			if apy, ok := financing.RealizedAPY(price, inv.FaceValue, inv.FinancedAt, inv.PaidAt); ok {
				apySum += apy
				apyN++
			}
		case invoice.StatusDisputed:
			m.Disputed++
			m.ImpairedInvested += price
		case invoice.StatusDefaulted:
			m.Defaulted++
			m.ImpairedInvested += price
		}
	}
	m.AverageAPY = mean(apySum, apyN)
	m.SuccessRate = percent(m.Completed, m.Active+m.Completed)
	return m
}

// Summarize computes platform-wide counts, volume and timing.
func Summarize(invoices []invoice.Invoice) PlatformSummary {
	s := PlatformSummary{TotalInvoices: len(invoices)}
	issuers := map[string]struct{}{}
	financiers := map[string]struct{}{}
	var (
		financeTotal, settleTotal time.Duration
		financeN, settleN         int
	)
	for _, inv := range invoices {
		s.TotalVolume += inv.FaceValue
		if inv.Issuer != "" {
			issuers[invoice.NormalizeAddress(inv.Issuer)] = struct{}{}
		}
		if inv.Financier != "" {
			financiers[invoice.NormalizeAddress(inv.Financier)] = struct{}{}
		}
		if inv.IsFinanced() {
			s.FinancedCount++
		}
		switch inv.Status {
		case invoice.StatusPaid:
			s.PaidCount++
		case invoice.StatusDefaulted:
			s.DefaultedCount++
		}

		if d := span(inv.CreatedAt, inv.FinancedAt); d > 0 {
			financeTotal += d
			financeN++
		}
		if inv.IsSettled() {
			if d := span(inv.FinancedAt, inv.PaidAt); d > 0 {
				settleTotal += d
				settleN++
			}
		}
	}
	s.UniqueIssuers = len(issuers)
	s.UniqueFinanciers = len(financiers)
	s.AvgTimeToFinance = meanDuration(financeTotal, financeN)
	s.AvgTimeToSettlement = meanDuration(settleTotal, settleN)
	return s
}

// span is zero when either end is missing or the interval runs backwards.
func span(from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return 0
	}
	return to.Sub(from)
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func meanDuration(sum time.Duration, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return sum / time.Duration(n)
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
