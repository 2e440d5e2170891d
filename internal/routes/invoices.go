package routes

import (
    "github.com/gofiber/fiber/v2"

    "github.com/invoicefi/reconciler/internal/invoices"
)

// RegisterInvoiceRoutes wires invoice listing, detail and companion endpoints.
func RegisterInvoiceRoutes(r fiber.Router, h *invoices.Handler) {
    r.Get("/invoices", h.List)
    r.Get("/invoices/:id", h.Get)
    r.Get("/invoices/:id/escrow", h.Escrow)
    r.Get("/invoices/:id/funding", h.Funding)
}
