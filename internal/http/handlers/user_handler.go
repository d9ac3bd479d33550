package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tsiken/backend/internal/middleware"
	"github.com/tsiken/backend/internal/services"
	"go.uber.org/zap"
)

type UserHandler struct {
	accounts *services.AccountService
	log      *zap.Logger
}

func NewUserHandler(accounts *services.AccountService, log *zap.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, log: log}
}

func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	user, err := h.accounts.GetProfile(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, user)
}

func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	var req services.UpdateProfileInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	user, err := h.accounts.UpdateProfile(c.Context(), middleware.GetUserID(c), req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, user)
}

func (h *UserHandler) ChangePassword(c *fiber.Ctx) error {
	var req services.ChangePasswordInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if err := h.accounts.ChangePassword(c.Context(), middleware.GetUserID(c), req); err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, nil)
}
