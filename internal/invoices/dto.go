package invoices

import (
	"time"

	"github.com/invoicefi/reconciler/internal/invoice"
	"github.com/invoicefi/reconciler/internal/lifecycle"
)

// InvoiceResponse is the wire form of an invoice. Money is sent both as
// micro-units and as display units, each under an explicit name.
type InvoiceResponse struct {
	ID                    string           `json:"id"`
	Issuer                string           `json:"issuer"`
	Buyer                 string           `json:"buyer"`
	Status                invoice.Status   `json:"status"`
	AllowedTransitions    []invoice.Status `json:"allowed_transitions"`
	FaceValue             int64            `json:"face_value_micro"`
	FaceValueDisplay      float64          `json:"face_value_display"`
	DiscountBps           int64            `json:"discount_bps"`
	EscrowBps             int64            `json:"escrow_bps"`
	PlatformFeeBps        int64            `json:"platform_fee_bps"`
	DueDate               *time.Time       `json:"due_date,omitempty"`
	CreatedAt             *time.Time       `json:"created_at,omitempty"`
	FinancedAt            *time.Time       `json:"financed_at,omitempty"`
	PaidAt                *time.Time       `json:"paid_at,omitempty"`
	DaysUntilDue          int64            `json:"days_until_due"`
	Overdue               bool             `json:"overdue"`
	Financier             string           `json:"financier,omitempty"`
	EscrowID              string           `json:"escrow_id,omitempty"`
	FundingID             string           `json:"funding_id,omitempty"`
	AmountPaid            int64            `json:"amount_paid_micro"`
	AmountPaidDisplay     float64          `json:"amount_paid_display"`
	AmountReceived        int64            `json:"amount_received_micro"`
	AmountReceivedDisplay float64          `json:"amount_received_display"`
	Description           string           `json:"description,omitempty"`
}

// ListResponse is one page of invoices.
type ListResponse struct {
	Items     []InvoiceResponse `json:"items"`
	Total     int               `json:"total"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
	Source    string            `json:"source"`
	Truncated bool              `json:"truncated"`
}

// DetailResponse is one invoice with its timeline.
type DetailResponse struct {
	Invoice          InvoiceResponse        `json:"invoice"`
	Timeline         []lifecycle.Transition `json:"timeline"`
	TimelineComplete bool                   `json:"timeline_complete"`
}

// EscrowResponse is the wire form of an escrow.
type EscrowResponse struct {
	ID                    string  `json:"id"`
	InvoiceID             string  `json:"invoice_id"`
	Buyer                 string  `json:"buyer,omitempty"`
	RequiredAmount        int64   `json:"required_amount_micro"`
	RequiredAmountDisplay float64 `json:"required_amount_display"`
	Paid                  bool    `json:"paid"`
}

// FundingResponse is the wire form of a funding record.
type FundingResponse struct {
	ID            string  `json:"id"`
	InvoiceID     string  `json:"invoice_id"`
	Funder        string  `json:"funder"`
	Amount        int64   `json:"amount_micro"`
	AmountDisplay float64 `json:"amount_display"`
}

func toInvoiceResponse(inv invoice.Invoice, now time.Time) InvoiceResponse {
	resp := InvoiceResponse{
		ID:                    inv.ID,
		Issuer:                inv.Issuer,
		Buyer:                 inv.Buyer,
		Status:                inv.Status,
		AllowedTransitions:    invoice.AllowedTransitions(inv.Status),
		FaceValue:             inv.FaceValue,
		FaceValueDisplay:      invoice.ToDisplay(inv.FaceValue),
		DiscountBps:           inv.DiscountBps,
		EscrowBps:             inv.EscrowBps,
		PlatformFeeBps:        inv.PlatformFeeBps,
		DueDate:               optionalTime(inv.DueDate),
		CreatedAt:             optionalTime(inv.CreatedAt),
		FinancedAt:            optionalTime(inv.FinancedAt),
		PaidAt:                optionalTime(inv.PaidAt),
		Overdue:               inv.Overdue(now),
		Financier:             inv.Financier,
		EscrowID:              inv.EscrowID,
		FundingID:             inv.FundingID,
		AmountPaid:            inv.AmountPaid,
		AmountPaidDisplay:     invoice.ToDisplay(inv.AmountPaid),
		AmountReceived:        inv.AmountReceived,
		AmountReceivedDisplay: invoice.ToDisplay(inv.AmountReceived),
		Description:           inv.Description,
	}
	if !inv.DueDate.IsZero() {
		resp.DaysUntilDue = inv.DaysUntilDue(now)
	}
	return resp
}

func toInvoiceResponses(items []invoice.Invoice, now time.Time) []InvoiceResponse {
	out := make([]InvoiceResponse, 0, len(items))
	for _, inv := range items {
		out = append(out, toInvoiceResponse(inv, now))
	}
	return out
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
