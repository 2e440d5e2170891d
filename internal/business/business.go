// Package business answers owner-indexed questions about businesses, such
// as whether an address holds a registration capability.
package business

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/discovery"
	"github.com/invoicefi/reconciler/internal/invoice"
)

// Registration reports the capability objects an address owns.
type Registration struct {
	Address       string   `json:"address"`
	Registered    bool     `json:"registered"`
	CapabilityIDs []string `json:"capability_ids"`
}

// Service looks up registrations.
type Service struct {
	reader  chain.Reader
	capType string
	logger  *slog.Logger
}

// NewService constructs a registration lookup for the fully qualified capability type.
func NewService(reader chain.Reader, capType string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reader: reader, capType: capType, logger: logger}
}

// Registration validates address and lists the capabilities it owns.
func (s *Service) Registration(ctx context.Context, address string) (Registration, error) {
	if err := invoice.ValidateAddress(address); err != nil {
		return Registration{}, &invoice.ValidationError{Fields: map[string]string{"address": err.Error()}}
	}
	if s.capType == "" {
		return Registration{}, fmt.Errorf("%w: business capability type is empty", discovery.ErrNotConfigured)
	}

	ids, err := s.reader.GetOwnedObjects(ctx, address, s.capType)
	if err != nil {
		return Registration{}, fmt.Errorf("owned objects of %s: %w", address, err)
	}
	if ids == nil {
		ids = []string{}
	}
	s.logger.DebugContext(ctx, "registration lookup", "address", address, "capabilities", len(ids))
	return Registration{Address: address, Registered: len(ids) > 0, CapabilityIDs: ids}, nil
}

// Handler exposes the registration lookup.
type Handler struct {
	service *Service
}

// NewHandler constructs a business handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Registration returns whether :address is a registered business.
func (h *Handler) Registration(c *fiber.Ctx) error {
	reg, err := h.service.Registration(c.UserContext(), c.Params("address"))
	if err != nil {
		var verr *invoice.ValidationError
		switch {
		case errors.As(err, &verr):
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "fields": verr.Fields})
		case errors.Is(err, chain.ErrTransport):
			return fiber.NewError(http.StatusBadGateway, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(reg)
}
