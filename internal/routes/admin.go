package routes

import (
    "log/slog"
    "net/http"

    "github.com/gofiber/fiber/v2"
    "github.com/redis/go-redis/v9"

    "github.com/invoicefi/reconciler/internal/cache"
    "github.com/invoicefi/reconciler/internal/middleware"
)

// RegisterAdminRoutes wires operator endpoints. Resetting the identifier
// cache is always safe: every entry is rebuilt from the ledger on demand.
func RegisterAdminRoutes(r fiber.Router, idx *cache.Index, rdb *redis.Client, logger *slog.Logger) {
    r.Post("/cache/reset", func(c *fiber.Ctx) error {
        if err := idx.Reset(c.UserContext()); err != nil {
            logger.ErrorContext(c.UserContext(), "reset identifier cache", "error", err)
            return fiber.NewError(http.StatusInternalServerError, "cache reset failed")
        }
        if err := middleware.PurgeResponseCache(c.UserContext(), rdb); err != nil {
            logger.WarnContext(c.UserContext(), "purge response cache", "error", err)
        }
        logger.InfoContext(c.UserContext(), "identifier cache reset", "request_id", middleware.RequestIDFrom(c))
        return c.SendStatus(http.StatusNoContent)
    })
}
