package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tsiken/backend/internal/http/dto"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/services"
)

type MetaHandler struct{}

func NewMetaHandler() *MetaHandler {
	return &MetaHandler{}
}

var detectionStatuses = []string{
	models.DetectionStatusNew,
	models.DetectionStatusReviewed,
	models.DetectionStatusFalsePositive,
}

func (h *MetaHandler) GetCollections(c *fiber.Ctx) error {
	out := make([]dto.CollectionInfo, 0, len(models.LogCollections))
	for _, name := range models.LogCollections {
		out = append(out, dto.CollectionInfo{Name: name})
	}
	return ok(c, out)
}

func (h *MetaHandler) GetPredatorClasses(c *fiber.Ctx) error {
	return ok(c, fiber.Map{
		"classes":        services.PredatorClasses,
		"min_confidence": services.DefaultMinConfidence,
		"statuses":       detectionStatuses,
	})
}
