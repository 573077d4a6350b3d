package handlers

import (
	"log/slog"

	"github.com/crosspost-labs/crosspost/internal/service"
	"github.com/gofiber/fiber/v2"
)

type OAuthHandler struct {
	s service.OAuthService
}

func NewOAuthHandler(s service.OAuthService) *OAuthHandler {
	return &OAuthHandler{s: s}
}

// Authorize starts the consent flow for ?account_id= on /oauth/:provider/auth.
func (h *OAuthHandler) Authorize(c *fiber.Ctx) error {
	providerName := c.Params("provider")
	accountID := int64(c.QueryInt("account_id", 0))
	if accountID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "account_id is required",
		})
	}

	authURL, err := h.s.AuthorizationURL(c.Context(), providerName, accountID)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to start authorization",
		})
	}

	return c.Redirect(authURL, fiber.StatusFound)
}

func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	providerName := c.Params("provider")

	err := h.s.HandleCallback(c.Context(), providerName, code, state)
	if err != nil {
		if service.IsStateError(err) {
			// Replay or stale callback; reject at the boundary.
			slog.Warn("callback rejected", "provider", providerName, "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid or expired authorization state",
			})
		}
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "provider exchange failed",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "account connected",
	})
}

func (h *OAuthHandler) Disconnect(c *fiber.Ctx) error {
	providerName := c.Query("provider")
	accountID, err := c.ParamsInt("id")
	if err != nil || providerName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "account id and provider are required",
		})
	}

	if err := h.s.Disconnect(c.Context(), int64(accountID), providerName); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to disconnect account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
