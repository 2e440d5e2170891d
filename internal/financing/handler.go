package financing

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/invoice"
)

// Handler exposes HTTP endpoints for offer pricing and treasury reads.
type Handler struct {
	service *Service
}

// NewHandler constructs a financing handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Quote prices an offer and reports whether it may be submitted.
func (h *Handler) Quote(c *fiber.Ctx) error {
	var req QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	faceValue := req.FaceValue
	if faceValue == 0 && req.FaceValueDisplay != 0 {
		micro, err := invoice.FromDisplay(req.FaceValueDisplay)
		if err != nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error":  "validation failed",
				"fields": map[string]string{"face_value_display": err.Error()},
			})
		}
		faceValue = micro
	}

	quote, params, err := h.service.Quote(c.UserContext(), Offer{
		FaceValue:    faceValue,
		DiscountBps:  req.DiscountBps,
		DaysUntilDue: req.DaysUntilDue,
	})
	if err != nil {
		var verr *invoice.ValidationError
		if errors.As(err, &verr) {
			body := fiber.Map{"error": "validation failed", "fields": verr.Fields}
			if quote.InvestorPays != 0 || quote.FaceValue != 0 {
				body["quote"] = toQuoteResponse(quote, params)
			}
			return c.Status(http.StatusBadRequest).JSON(body)
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(toQuoteResponse(quote, params))
}

// Params returns the fee parameters in force.
func (h *Handler) Params(c *fiber.Ctx) error {
	params, source := h.service.Params(c.UserContext())
	return c.JSON(fiber.Map{
		"params":           params,
		"source":           source,
		"max_discount_bps": h.service.MaxDiscountBps(),
	})
}

// Treasury returns the treasury balances and its fee parameters.
func (h *Handler) Treasury(c *fiber.Ctx) error {
	t, err := h.service.Treasury(c.UserContext())
	if err != nil {
		switch {
		case errors.Is(err, ErrNoTreasury):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, chain.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "treasury object not found")
		case errors.Is(err, chain.ErrTransport):
			return fiber.NewError(http.StatusBadGateway, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	params, source := h.service.Params(c.UserContext())
	return c.JSON(TreasuryResponse{
		ID:                   t.ID,
		Balance:              t.Balance,
		BalanceDisplay:       invoice.ToDisplay(t.Balance),
		FeesCollected:        t.FeesCollected,
		FeesCollectedDisplay: invoice.ToDisplay(t.FeesCollected),
		Params:               params,
		ParamsSource:         source,
	})
}
