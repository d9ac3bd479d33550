package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tsiken/backend/internal/http/dto"
	"github.com/tsiken/backend/internal/middleware"
	"github.com/tsiken/backend/internal/models"
	"github.com/tsiken/backend/internal/repositories"
	"github.com/tsiken/backend/internal/services"
	"go.uber.org/zap"
)

type DetectionHandler struct {
	detections *services.DetectionService
	log        *zap.Logger
}

func NewDetectionHandler(detections *services.DetectionService, log *zap.Logger) *DetectionHandler {
	return &DetectionHandler{detections: detections, log: log}
}

// List returns the caller's detections. Admins get every user's detections
// with ?all=true.
func (h *DetectionHandler) List(c *fiber.Ctx) error {
	identity := middleware.GetIdentity(c)
	f := repositories.DetectionFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if status := c.Query("status"); status != "" {
		f.Status = &status
	}
	if !(identity.Role == models.RoleAdmin && c.QueryBool("all", false)) {
		uid := middleware.GetUserID(c)
		f.UserID = &uid
	}

	list, err := h.detections.List(c.Context(), f)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, list)
}

func (h *DetectionHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid detection id")
	}
	d, err := h.detections.Get(c.Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	identity := middleware.GetIdentity(c)
	if identity.Role != models.RoleAdmin && d.UserID.String() != identity.UserID {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "detection not found"})
	}
	return ok(c, d)
}

func (h *DetectionHandler) Capture(c *fiber.Ctx) error {
	var req dto.CaptureRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.ServerURL == "" {
		return badRequest(c, "server_url is required")
	}

	var target *services.DetectedObject
	if req.Class != "" {
		target = &services.DetectedObject{Class: req.Class, Confidence: req.Confidence, BBox: req.BBox}
	}
	d, err := h.detections.Capture(c.Context(), middleware.GetUserID(c), req.ServerURL, target)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return created(c, d)
}

func (h *DetectionHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid detection id")
	}
	var req dto.UpdateDetectionStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	d, err := h.detections.UpdateStatus(c.Context(), middleware.GetIdentity(c), id, req.Status)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, d)
}

func (h *DetectionHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid detection id")
	}
	if err := h.detections.Delete(c.Context(), middleware.GetIdentity(c), id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Discover checks candidate detection servers and returns the first online
// one. Candidates come from ?candidates=a,b or the configured servers.
func (h *DetectionHandler) Discover(c *fiber.Ctx) error {
	var candidates []string
	for _, u := range strings.Split(c.Query("candidates"), ",") {
		if u = strings.TrimSpace(u); u != "" {
			candidates = append(candidates, strings.TrimRight(u, "/"))
		}
	}
	url, err := h.detections.Discover(c.Context(), candidates)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, dto.DiscoverResponse{ServerURL: url})
}
