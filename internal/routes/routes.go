package routes

import (
    "fmt"
    "log/slog"
    "net/http"
    "time"

    "github.com/gofiber/fiber/v2"
    "github.com/gofiber/fiber/v2/middleware/adaptor"
    "github.com/gofiber/fiber/v2/middleware/logger"
    "github.com/gofiber/fiber/v2/middleware/recover"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/redis/go-redis/v9"

    "github.com/invoicefi/reconciler/internal/analytics"
    "github.com/invoicefi/reconciler/internal/business"
    "github.com/invoicefi/reconciler/internal/cache"
    "github.com/invoicefi/reconciler/internal/chain"
    "github.com/invoicefi/reconciler/internal/config"
    "github.com/invoicefi/reconciler/internal/discovery"
    "github.com/invoicefi/reconciler/internal/financing"
    "github.com/invoicefi/reconciler/internal/invoices"
    "github.com/invoicefi/reconciler/internal/lifecycle"
    "github.com/invoicefi/reconciler/internal/metrics"
    "github.com/invoicefi/reconciler/internal/middleware"
    "github.com/invoicefi/reconciler/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes. DB and Redis
// are optional; Store is the identifier cache whichever backend holds it.
type Deps struct {
    Cfg      config.Config
    Reader   chain.Reader
    Store    cache.Store
    DB       *pgxpool.Pool
    Redis    *redis.Client
    Logger   *slog.Logger
    Metrics  *metrics.Metrics
    Registry *prometheus.Registry
    Notifier notification.Notifier
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
    if d.Reader == nil {
        return fmt.Errorf("ledger reader is required")
    }
    if d.Store == nil {
        return fmt.Errorf("cache store is required")
    }
    if d.Notifier == nil {
        d.Notifier = notification.NewLoggerNotifier(d.Logger)
    }

    // Middlewares
    app.Use(recover.New())
    app.Use(middleware.RequestID())
    // Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
    app.Use(logger.New(logger.Config{
        Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
        TimeFormat: "15:04:05",
        TimeZone:   "Local",
    }))
    app.Use(middleware.Audit(d.Logger))

    // Health and metrics
    RegisterHealthRoutes(app, d)
    if d.Registry != nil {
        app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
    }

    // Services and handlers
    idx := cache.NewIndex(d.Store)
    disc := discovery.New(d.Reader, idx, discovery.Config{
        PackageID:     d.Cfg.PackageID,
        Module:        d.Cfg.InvoiceModule,
        EventName:     d.Cfg.InvoiceCreatedEvent,
        PageSize:      d.Cfg.DiscoveryPageSize,
        MaxPages:      d.Cfg.DiscoveryMaxPages,
        Retries:       d.Cfg.DiscoveryRetries,
        RetryInterval: d.Cfg.DiscoveryRetryInterval,
    }, d.Logger, d.Notifier, d.Metrics)
    recon := lifecycle.New(d.Reader, idx, lifecycle.Config{
        PackageID:   d.Cfg.PackageID,
        Module:      d.Cfg.InvoiceModule,
        PageSize:    d.Cfg.DiscoveryPageSize,
        MaxPages:    d.Cfg.TimelineMaxPages,
        EscrowType:  d.Cfg.EscrowType,
        FundingType: d.Cfg.FundingType,
    }, d.Logger, d.Notifier, d.Metrics)
    invoiceSvc := invoices.NewService(d.Reader, disc, idx, recon, d.Logger, d.Metrics, invoices.Options{
        Concurrency: d.Cfg.FetchConcurrency,
    })
    financingSvc, err := financing.NewService(d.Reader, d.Cfg.TreasuryID, financing.Params{
        OriginationFeeBps: d.Cfg.OriginationFeeBps,
        TakeRateBps:       d.Cfg.TakeRateBps,
        SettlementFee:     d.Cfg.SettlementFeeMicro,
    }, d.Cfg.MaxDiscountBps, d.Logger)
    if err != nil {
        return err
    }
    businessSvc := business.NewService(d.Reader, d.Cfg.BusinessCapType, d.Logger)

    invoiceHandler := invoices.NewHandler(invoiceSvc)
    financingHandler := financing.NewHandler(financingSvc)
    analyticsHandler := analytics.NewHandler(invoiceSvc, financingSvc)
    businessHandler := business.NewHandler(businessSvc)

    // API routes
    api := app.Group("/api/v1", middleware.RateLimit(d.Redis, d.Cfg.RateLimitPerMinute))
    api.Get("/ping", func(c *fiber.Ctx) error {
        return c.Status(http.StatusOK).JSON(fiber.Map{
            "status":     "ok",
            "request_id": middleware.RequestIDFrom(c),
            "timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
        })
    })

    // Read routes share the short-lived response cache
    reads := api.Group("", middleware.ResponseCache(d.Redis, d.Cfg.ResponseCacheTTL, d.Logger))
    RegisterInvoiceRoutes(reads, invoiceHandler)
    RegisterFinancingRoutes(reads, financingHandler)
    RegisterAnalyticsRoutes(reads, analyticsHandler)
    RegisterBusinessRoutes(reads, businessHandler)

    // Operator routes
    admin := api.Group("/admin", middleware.AdminToken(d.Cfg.AdminTokenHash))
    RegisterAdminRoutes(admin, idx, d.Redis, d.Logger)

    return nil
}
