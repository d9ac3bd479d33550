package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tsiken/backend/internal/middleware"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/services"
	"go.uber.org/zap"
)

type SensorHandler struct {
	sensors *services.SensorService
	log     *zap.Logger
}

func NewSensorHandler(sensors *services.SensorService, log *zap.Logger) *SensorHandler {
	return &SensorHandler{sensors: sensors, log: log}
}

func (h *SensorHandler) Record(c *fiber.Ctx) error {
	var req services.ReadingInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	readings, err := h.sensors.Record(c.Context(), middleware.GetUserID(c), req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return created(c, readings)
}

// Averages returns the caller's sensor averages, or the all-user averages
// for admins passing ?scope=all.
func (h *SensorHandler) Averages(c *fiber.Ctx) error {
	var userID *uuid.UUID
	if !(c.Query("scope") == "all" && middleware.GetIdentity(c).Role == models.RoleAdmin) {
		uid := middleware.GetUserID(c)
		userID = &uid
	}
	avgs, err := h.sensors.Averages(c.Context(), userID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, avgs)
}
