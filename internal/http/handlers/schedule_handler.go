package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/tsiken/backend/internal/apperr"
	"github.com/tsiken/backend/internal/http/dto"
	"github.com/tsiken/backend/internal/middleware"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/services"
	"go.uber.org/zap"
)

type ScheduleHandler struct {
	schedules *services.ScheduleService
	log       *zap.Logger
}

func NewScheduleHandler(schedules *services.ScheduleService, log *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, log: log}
}

func clockTime(c *fiber.Ctx, field string) (models.ClockTime, error) {
	var req dto.ClockRequest
	if err := c.BodyParser(&req); err != nil {
		return 0, apperr.Field(field, "invalid request")
	}
	t, err := models.ParseClockTime(req.Time)
	if err != nil {
		return 0, apperr.Field(field, "time must be HH:MM")
	}
	return t, nil
}

func (h *ScheduleHandler) ListFeeds(c *fiber.Ctx) error {
	feeds, err := h.schedules.Feeds(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, feeds)
}

func (h *ScheduleHandler) AddFeed(c *fiber.Ctx) error {
	at, err := clockTime(c, "time")
	if err != nil {
		return respondError(c, h.log, err)
	}
	f, err := h.schedules.AddFeed(c.Context(), middleware.GetUserID(c), at)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return created(c, f)
}

func (h *ScheduleHandler) UpdateFeed(c *fiber.Ctx) error {
	feedNo, err := strconv.Atoi(c.Params("id"))
	if err != nil || feedNo <= 0 {
		return badRequest(c, "invalid feeding schedule id")
	}
	at, err := clockTime(c, "time")
	if err != nil {
		return respondError(c, h.log, err)
	}
	f, err := h.schedules.UpdateFeed(c.Context(), middleware.GetUserID(c), feedNo, at)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, f)
}

func (h *ScheduleHandler) DeleteFeed(c *fiber.Ctx) error {
	feedNo, err := strconv.Atoi(c.Params("id"))
	if err != nil || feedNo <= 0 {
		return badRequest(c, "invalid feeding schedule id")
	}
	if err := h.schedules.DeleteFeed(c.Context(), middleware.GetUserID(c), feedNo); err != nil {
		return respondError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ScheduleHandler) GetWatering(c *fiber.Ctx) error {
	w, err := h.schedules.Watering(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, w)
}

func (h *ScheduleHandler) SaveWatering(c *fiber.Ctx) error {
	var req services.WateringInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	w, err := h.schedules.SaveWatering(c.Context(), middleware.GetUserID(c), req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, w)
}

func (h *ScheduleHandler) DeleteWatering(c *fiber.Ctx) error {
	if err := h.schedules.DeleteWatering(c.Context(), middleware.GetUserID(c)); err != nil {
		return respondError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ScheduleHandler) GetNightTime(c *fiber.Ctx) error {
	n, err := h.schedules.NightTime(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, n)
}

func (h *ScheduleHandler) SetNightTime(c *fiber.Ctx) error {
	at, err := clockTime(c, "starts_at")
	if err != nil {
		return respondError(c, h.log, err)
	}
	n, err := h.schedules.SetNightTime(c.Context(), middleware.GetUserID(c), at)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, n)
}
