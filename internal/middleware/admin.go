package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// AdminToken guards operator endpoints with a bearer token checked against a
// bcrypt hash. An empty hash disables the endpoints.
func AdminToken(tokenHash string) fiber.Handler {
	hash := []byte(tokenHash)
	return func(c *fiber.Ctx) error {
		if len(hash) == 0 {
			return fiber.NewError(http.StatusForbidden, "admin endpoints are disabled")
		}
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		if bcrypt.CompareHashAndPassword(hash, []byte(token)) != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals("admin", true)
		return c.Next()
	}
}
