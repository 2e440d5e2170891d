package routes

import (
    "github.com/gofiber/fiber/v2"

    "github.com/invoicefi/reconciler/internal/financing"
)

// RegisterFinancingRoutes wires offer pricing and treasury endpoints.
func RegisterFinancingRoutes(r fiber.Router, h *financing.Handler) {
    r.Post("/financing/quote", h.Quote)
    r.Get("/financing/params", h.Params)
    r.Get("/treasury", h.Treasury)
}
