package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tsiken/backend/internal/apperr"
	"github.com/tsiken/backend/internal/http/dto"
	"github.com/tsiken/backend/internal/middleware"
	"go.uber.org/zap"
)

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindConflict:
		return fiber.StatusConflict
	case apperr.KindUnauthorized:
		return fiber.StatusUnauthorized
	case apperr.KindForbidden:
		return fiber.StatusForbidden
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindUnavailable:
		return fiber.StatusServiceUnavailable
	case apperr.KindTooManyRequests:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse. Internal errors are logged and
// replaced by a generic message.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	kind := apperr.KindOf(err)
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)
	if kind == apperr.KindInternal || kind == apperr.KindUnavailable {
		log.Error("request failed",
			zap.String("request_id", reqID),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(statusFor(kind)).JSON(dto.ErrorResponse{
		Error:     apperr.Public(err),
		Fields:    apperr.FieldsOf(err),
		RequestID: reqID,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: reqID})
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: data})
}

func created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: data})
}
