package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tsiken/backend/internal/http/dto"
	"github.com/tsiken/backend/internal/middleware"
	"github.com/tsiken/backend/internal/services"
	"go.uber.org/zap"
)

type AuthHandler struct {
	accounts *services.AccountService
	log      *zap.Logger
}

func NewAuthHandler(accounts *services.AccountService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, log: log}
}

func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req services.SignUpInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	res, err := h.accounts.SignUp(c.Context(), req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return created(c, dto.AuthResponse{Token: res.Token, User: res.User})
}

func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var req services.SignInInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	req.DeviceID = middleware.GetDeviceID(c)

	res, err := h.accounts.SignIn(c.Context(), req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, dto.AuthResponse{Token: res.Token, User: res.User, AdminSession: res.AdminSession})
}

func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	if err := h.accounts.Logout(c.Context(), middleware.GetIdentity(c), middleware.GetDeviceID(c)); err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, nil)
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if err := h.accounts.RequestPasswordReset(c.Context(), req.Email); err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, fiber.Map{"message": "If the email is registered, a reset link has been sent."})
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req services.ResetPasswordInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	req.Client = middleware.GetDeviceID(c)
	if req.Client == "" {
		req.Client = "ip:" + c.IP()
	}
	if err := h.accounts.ResetPassword(c.Context(), req); err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, nil)
}
