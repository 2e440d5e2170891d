package routes

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/gofiber/fiber/v2"

    "github.com/invoicefi/reconciler/internal/chain"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints. Optional
// backends that are not configured report "disabled".
func RegisterHealthRoutes(app *fiber.App, d Deps) {
    app.Get("/healthz", func(c *fiber.Ctx) error {
        dbStatus := "disabled"
        redisStatus := "disabled"
        ledgerStatus := "ok"

        ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
        defer cancel()
        if d.DB != nil {
            dbStatus = "ok"
            if err := d.DB.Ping(ctx); err != nil {
                dbStatus = err.Error()
            }
        }
        if d.Redis != nil {
            redisStatus = "ok"
            if err := d.Redis.Ping(ctx).Err(); err != nil {
                redisStatus = err.Error()
            }
        }
        // the treasury is a cheap known object; without one only transport is checked
        checkID := d.Cfg.TreasuryID
        if checkID == "" {
            checkID = "0x0"
        }
        if _, err := d.Reader.GetObject(ctx, checkID); err != nil && !errors.Is(err, chain.ErrNotFound) {
            ledgerStatus = err.Error()
        }

        status := http.StatusOK
        if ledgerStatus != "ok" || !healthy(dbStatus) || !healthy(redisStatus) {
            status = http.StatusServiceUnavailable
        }
        return c.Status(status).JSON(fiber.Map{
            "status":    fiber.Map{"ledger": ledgerStatus, "postgres": dbStatus, "redis": redisStatus},
            "timestamp": time.Now().UTC().Format(time.RFC3339Nano),
        })
    })
}

func healthy(status string) bool {
    return status == "ok" || status == "disabled"
}
