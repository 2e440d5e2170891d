package invoices

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/discovery"
	"github.com/invoicefi/reconciler/internal/invoice"
	"github.com/invoicefi/reconciler/internal/lifecycle"
)

// Handler exposes invoice listing, detail and companion endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an invoices handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List returns a filtered, sorted page of invoices.
func (h *Handler) List(c *fiber.Ctx) error {
	crit, verr := criteriaFromQuery(c)
	if verr != nil {
		return validationResponse(c, verr)
	}

	page, err := h.service.List(c.UserContext(), crit)
	if err != nil {
		return respondError(c, err)
	}

	limit := crit.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	return c.JSON(ListResponse{
		Items:     toInvoiceResponses(page.Items, h.service.Now()),
		Total:     page.Total,
		Limit:     limit,
		Offset:    crit.Offset,
		Source:    string(page.Source),
		Truncated: page.Truncated,
	})
}

// Get returns one invoice and its timeline.
func (h *Handler) Get(c *fiber.Ctx) error {
	d, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	timeline := d.Timeline
	if timeline == nil {
		timeline = []lifecycle.Transition{}
	}
	return c.JSON(DetailResponse{
		Invoice:          toInvoiceResponse(d.Invoice, h.service.Now()),
		Timeline:         timeline,
		TimelineComplete: d.TimelineComplete,
	})
}

// Escrow returns the escrow of an invoice.
func (h *Handler) Escrow(c *fiber.Ctx) error {
	esc, err := h.service.Escrow(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(EscrowResponse{
		ID:                    esc.ID,
		InvoiceID:             esc.InvoiceID,
		Buyer:                 esc.Buyer,
		RequiredAmount:        esc.RequiredAmount,
		RequiredAmountDisplay: invoice.ToDisplay(esc.RequiredAmount),
		Paid:                  esc.Paid,
	})
}

// Funding returns the funding record of an invoice.
func (h *Handler) Funding(c *fiber.Ctx) error {
	f, err := h.service.Funding(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(FundingResponse{
		ID:            f.ID,
		InvoiceID:     f.InvoiceID,
		Funder:        f.Funder,
		Amount:        f.Amount,
		AmountDisplay: invoice.ToDisplay(f.Amount),
	})
}

func criteriaFromQuery(c *fiber.Ctx) (Criteria, *invoice.ValidationError) {
	verr := &invoice.ValidationError{}
	crit := Criteria{
		Status:  c.Query("status"),
		Address: c.Query("address"),
		SortBy:  c.Query("sort_by"),
		Order:   c.Query("order"),
	}
	crit.MinAmount = queryInt64(c, "min_amount", verr)
	crit.MaxAmount = queryInt64(c, "max_amount", verr)
	crit.Limit = int(queryInt64(c, "limit", verr))
	crit.Offset = int(queryInt64(c, "offset", verr))
	if len(verr.Fields) > 0 {
		return Criteria{}, verr
	}
	return crit, nil
}

func queryInt64(c *fiber.Ctx, name string, verr *invoice.ValidationError) int64 {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		verr.Add(name, "must be an integer")
		return 0
	}
	return n
}

func validationResponse(c *fiber.Ctx, verr *invoice.ValidationError) error {
	return c.Status(http.StatusBadRequest).JSON(fiber.Map{
		"error":  "validation failed",
		"fields": verr.Fields,
	})
}

func respondError(c *fiber.Ctx, err error) error {
	var verr *invoice.ValidationError
	switch {
	case errors.Is(err, invoice.ErrDecode):
		// decode failures carry field errors of the ledger record, not of the request
		return fiber.NewError(http.StatusBadGateway, err.Error())
	case errors.As(err, &verr):
		return validationResponse(c, verr)
	case errors.Is(err, lifecycle.ErrCompanionNotFound):
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"error":       err.Error(),
			"recoverable": true,
		})
	case errors.Is(err, chain.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, discovery.ErrNotConfigured):
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	case errors.Is(err, chain.ErrTransport):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
