package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tsiken/backend/internal/http/dto"
	"github.com/tsiken/backend/internal/middleware"
	"github.com/tsiken/backend/internal/repositories"
	"github.com/tsiken/backend/internal/services"
	"go.uber.org/zap"
)

type AdminUserHandler struct {
	accounts *services.AccountService
	log      *zap.Logger
}

func NewAdminUserHandler(accounts *services.AccountService, log *zap.Logger) *AdminUserHandler {
	return &AdminUserHandler{accounts: accounts, log: log}
}

func (h *AdminUserHandler) List(c *fiber.Ctx) error {
	f := repositories.UserFilter{
		Search: c.Query("search"),
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if role := c.Query("role"); role != "" {
		f.Role = &role
	}
	users, err := h.accounts.ListUsers(c.Context(), f)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, users)
}

func (h *AdminUserHandler) Create(c *fiber.Ctx) error {
	var req services.CreateAccountInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	user, err := h.accounts.CreateAccount(c.Context(), middleware.GetIdentity(c), req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return created(c, user)
}

func (h *AdminUserHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid user id")
	}
	user, err := h.accounts.GetProfile(c.Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, user)
}

func (h *AdminUserHandler) SetRole(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid user id")
	}
	var req dto.SetRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if err := h.accounts.SetRole(c.Context(), middleware.GetIdentity(c), id, req.Role); err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, nil)
}

func (h *AdminUserHandler) SetLocked(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid user id")
	}
	var req dto.SetLockedRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if err := h.accounts.SetLocked(c.Context(), middleware.GetIdentity(c), id, req.Locked); err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, nil)
}

func (h *AdminUserHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid user id")
	}
	if err := h.accounts.DeleteUser(c.Context(), middleware.GetIdentity(c), id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
