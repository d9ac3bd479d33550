package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tsiken/backend/internal/http/dto"
	"github.com/tsiken/backend/internal/middleware"
	"github.com/tsiken/backend/internal/session"
	"go.uber.org/zap"
)

type SessionHandler struct {
	sessions *session.Store
	log      *zap.Logger
}

func NewSessionHandler(sessions *session.Store, log *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log}
}

// Check validates the calling device's admin session. An invalid session is
// cleared and reported with its reason; it is not an HTTP error.
func (h *SessionHandler) Check(c *fiber.Ctx) error {
	deviceID := middleware.GetDeviceID(c)
	v, err := h.sessions.Validate(c.Context(), deviceID, middleware.GetIdentity(c))
	if err != nil {
		h.log.Error("validate admin session", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "session store unavailable"})
	}

	resp := dto.SessionResponse{Valid: v.Valid, Email: v.Email, Role: v.Role, Reason: v.Reason}
	if v.Valid {
		if info, err := h.sessions.Info(c.Context(), deviceID); err == nil && info != nil {
			resp.Timestamp = info.Timestamp.Format(time.RFC3339)
		}
	}
	return ok(c, resp)
}

func (h *SessionHandler) Refresh(c *fiber.Ctx) error {
	refreshed, err := h.sessions.Refresh(c.Context(), middleware.GetDeviceID(c), middleware.GetIdentity(c))
	if err != nil {
		h.log.Error("refresh admin session", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "session store unavailable"})
	}
	if !refreshed {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "no valid admin session"})
	}
	return ok(c, fiber.Map{"refreshed": true})
}
