package middleware

import (
	"crypto/subtle"
	"log"
	"strings"

	config "github.com/crosspost-labs/crosspost/configs"
	"github.com/crosspost-labs/crosspost/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type AuthMiddleware struct {
	cfg config.Config
}

func NewAuthMiddleware(cfg config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// AuthMiddleware accepts either the static service key in X-Service-Key or
// an HS256 bearer token signed with the shared secret.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		serviceKey := c.Get("X-Service-Key")
		authHeader := c.Get("Authorization")

		if serviceKey == "" && authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing credentials",
			})
		}

		if serviceKey != "" {
			if m.cfg.ServiceAPIKey == "" ||
				subtle.ConstantTimeCompare([]byte(serviceKey), []byte(m.cfg.ServiceAPIKey)) != 1 {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid service key",
				})
			}
			c.Locals("caller", "service-key")
		} else {
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := utils.ValidateToken(m.cfg.SecretKey, tokenString)
			if err != nil {
				log.Printf("Token validation failed: %v", err)
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid or expired token",
				})
			}

			c.Locals("caller", claims.Service)
		}
		return c.Next()
	}
}
