package routes

import (
    "github.com/gofiber/fiber/v2"

    "github.com/invoicefi/reconciler/internal/analytics"
    "github.com/invoicefi/reconciler/internal/business"
)

// RegisterAnalyticsRoutes wires portfolio and platform aggregates.
func RegisterAnalyticsRoutes(r fiber.Router, h *analytics.Handler) {
    r.Get("/analytics/portfolio/:address", h.Portfolio)
    r.Get("/analytics/summary", h.Summary)
}

// RegisterBusinessRoutes wires owner-indexed business lookups.
func RegisterBusinessRoutes(r fiber.Router, h *business.Handler) {
    r.Get("/businesses/:address/registration", h.Registration)
}
