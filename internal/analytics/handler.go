package analytics

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/financing"
	"github.com/invoicefi/reconciler/internal/invoice"
)

// Source yields the reconstructed invoice universe.
type Source interface {
	All(ctx context.Context) ([]invoice.Invoice, error)
}

// ParamsSource yields the fee parameters in force and where they came from.
type ParamsSource interface {
	Params(ctx context.Context) (financing.Params, string)
}

// Handler exposes the aggregation endpoints.
type Handler struct {
	source Source
	params ParamsSource
}

// NewHandler constructs an analytics handler.
func NewHandler(source Source, params ParamsSource) *Handler {
	return &Handler{source: source, params: params}
}

type portfolioResponse struct {
	Address                 string  `json:"address"`
	Active                  int     `json:"active"`
	Completed               int     `json:"completed"`
	Disputed                int     `json:"disputed"`
	Defaulted               int     `json:"defaulted"`
	TotalInvested           int64   `json:"total_invested_micro"`
	TotalInvestedDisplay    float64 `json:"total_invested_display"`
	ImpairedInvested        int64   `json:"impaired_invested_micro"`
	ImpairedInvestedDisplay float64 `json:"impaired_invested_display"`
	TotalReturns            int64   `json:"total_returns_micro"`
	TotalReturnsDisplay     float64 `json:"total_returns_display"`
	AverageAPY              float64 `json:"average_apy"`
	SuccessRate             float64 `json:"success_rate"`
}

type summaryResponse struct {
	Address                    string  `json:"address,omitempty"`
	TotalInvoices              int     `json:"total_invoices"`
	FinancedCount              int     `json:"financed_count"`
	PaidCount                  int     `json:"paid_count"`
	DefaultedCount             int     `json:"defaulted_count"`
	TotalVolume                int64   `json:"total_volume_micro"`
	TotalVolumeDisplay         float64 `json:"total_volume_display"`
	AvgTimeToFinanceSeconds    float64 `json:"avg_time_to_finance_seconds"`
	AvgTimeToSettlementSeconds float64 `json:"avg_time_to_settlement_seconds"`
	UniqueIssuers              int     `json:"unique_issuers"`
	UniqueFinanciers           int     `json:"unique_financiers"`
}

// Portfolio returns the metrics of one financier address.
func (h *Handler) Portfolio(c *fiber.Ctx) error {
	address := c.Params("address")
	if err := invoice.ValidateAddress(address); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"fields": map[string]string{"address": err.Error()},
		})
	}

	all, err := h.source.All(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	params, _ := h.params.Params(c.UserContext())
	m := Portfolio(all, address, params)

	return c.JSON(portfolioResponse{
		Address:                 m.Address,
		Active:                  m.Active,
		Completed:               m.Completed,
		Disputed:                m.Disputed,
		Defaulted:               m.Defaulted,
		TotalInvested:           m.TotalInvested,
		TotalInvestedDisplay:    invoice.ToDisplay(m.TotalInvested),
		ImpairedInvested:        m.ImpairedInvested,
		ImpairedInvestedDisplay: invoice.ToDisplay(m.ImpairedInvested),
		TotalReturns:            m.TotalReturns,
		TotalReturnsDisplay:     invoice.ToDisplay(m.TotalReturns),
		AverageAPY:              m.AverageAPY,
		SuccessRate:             m.SuccessRate,
	})
}

// Summary returns the platform summary, restricted to the invoices of
// ?address= when given.
func (h *Handler) Summary(c *fiber.Ctx) error {
	address := c.Query("address")
	if address != "" {
		if err := invoice.ValidateAddress(address); err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error":  "validation failed",
				"fields": map[string]string{"address": err.Error()},
			})
		}
	}

	all, err := h.source.All(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	if address != "" {
		all = Filter(all, address)
	}
	s := Summarize(all)

	return c.JSON(summaryResponse{
		Address:                    address,
		TotalInvoices:              s.TotalInvoices,
		FinancedCount:              s.FinancedCount,
		PaidCount:                  s.PaidCount,
		DefaultedCount:             s.DefaultedCount,
		TotalVolume:                s.TotalVolume,
		TotalVolumeDisplay:         invoice.ToDisplay(s.TotalVolume),
		AvgTimeToFinanceSeconds:    s.AvgTimeToFinance.Seconds(),
		AvgTimeToSettlementSeconds: s.AvgTimeToSettlement.Seconds(),
		UniqueIssuers:              s.UniqueIssuers,
		UniqueFinanciers:           s.UniqueFinanciers,
	})
}

// mapError reports ledger outages as 502; configuration and other failures are 500.
func mapError(err error) error {
	if errors.Is(err, chain.ErrTransport) {
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}
	return fiber.NewError(http.StatusInternalServerError, err.Error())
}
