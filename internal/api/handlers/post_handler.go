package handlers

import (
	"errors"
	"log/slog"

	"github.com/crosspost-labs/crosspost/internal/service"
	"github.com/crosspost-labs/crosspost/internal/transfer"
	"github.com/gofiber/fiber/v2"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(s service.PostService) *PostHandler {
	return &PostHandler{s: s}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var req transfer.PostCreation
	if err := c.BodyParser(&req); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	if req.AccountID == 0 || req.Provider == "" || req.Caption == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "account_id, provider and caption are required",
		})
	}

	post, err := h.s.Create(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":     post.ID,
		"status": post.Status,
	})
}

func (h *PostHandler) PostStatus(c *fiber.Ctx) error {
	postID := c.QueryInt("id", 0)
	accountID := c.QueryInt("account_id", 0)

	if postID != 0 {
		post, err := h.s.Info(c.Context(), int64(postID))
		if err != nil {
			if errors.Is(err, service.ErrPostNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Unable to fetch post",
			})
		}

		return c.Status(fiber.StatusOK).JSON(transfer.PostStatusResponse{
			ID:           post.ID,
			Status:       post.Status,
			Attempts:     post.Attempts,
			LastError:    post.LastError,
			RemotePostID: post.RemotePostID,
		})
	}

	if accountID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "id or account_id is required",
		})
	}

	posts, err := h.s.ListByAccount(c.Context(), int64(accountID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) CancelPost(c *fiber.Ctx) error {
	postID := c.QueryInt("id", 0)
	if postID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "id is required",
		})
	}

	err := h.s.Cancel(c.Context(), int64(postID))
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		if errors.Is(err, service.ErrPostTerminal) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to cancel post",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
