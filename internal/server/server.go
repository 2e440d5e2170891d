package server

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/gofiber/fiber/v2"

    "github.com/invoicefi/reconciler/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
    app  *fiber.App
    deps routes.Deps
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(d routes.Deps) (*Server, error) {
    app := fiber.New(fiber.Config{
        AppName:               d.Cfg.AppName,
        ReadTimeout:           30 * time.Second,
        // discovery plus fan-out can take several ledger round trips
        WriteTimeout:          60 * time.Second,
        ErrorHandler:          errorHandler,
        DisableStartupMessage: !d.Cfg.IsDev(),
    })

    if err := routes.Setup(app, d); err != nil {
        return nil, err
    }

    return &Server{app: app, deps: d}, nil
}

// App exposes the underlying Fiber app for in-process tests.
func (s *Server) App() *fiber.App {
    return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
    return s.app.Listen(s.deps.Cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
    return s.app.ShutdownWithContext(ctx)
}

// errorHandler renders every error as {"error": message}.
func errorHandler(c *fiber.Ctx, err error) error {
    code := http.StatusInternalServerError
    var fe *fiber.Error
    if errors.As(err, &fe) {
        code = fe.Code
    }
    return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
