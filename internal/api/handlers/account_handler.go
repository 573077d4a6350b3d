package handlers

import (
	"log/slog"

	"github.com/crosspost-labs/crosspost/internal/service"
	"github.com/gofiber/fiber/v2"
)

type AccountHandler struct {
	s service.AccountService
}

func NewAccountHandler(s service.AccountService) *AccountHandler {
	return &AccountHandler{s: s}
}

func (h *AccountHandler) CreateAccount(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	account, err := h.s.Create(c.Context(), req.Name)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(account)
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.s.List(c.Context())
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accounts)
}

// SetActive pauses or resumes an account. Pending posts of a paused account
// are cancelled when they come due.
func (h *AccountHandler) SetActive(c *fiber.Ctx) error {
	accountID := c.QueryInt("id", 0)
	if accountID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "id is required",
		})
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	if err := h.s.SetActive(c.Context(), int64(accountID), req.Active); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to update account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *AccountHandler) SetPrimary(c *fiber.Ctx) error {
	accountID := c.QueryInt("id", 0)
	if accountID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "id is required",
		})
	}

	if err := h.s.SetPrimary(c.Context(), int64(accountID)); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to set primary account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
