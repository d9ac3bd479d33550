package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tsiken/backend/internal/middleware"
	"github.com/tsiken/backend/internal/services"
	"go.uber.org/zap"
)

type ActivityHandler struct {
	activity *services.ActivityService
	log      *zap.Logger
}

func NewActivityHandler(activity *services.ActivityService, log *zap.Logger) *ActivityHandler {
	return &ActivityHandler{activity: activity, log: log}
}

func logQuery(c *fiber.Ctx) services.LogQuery {
	return services.LogQuery{
		Name:     c.Query("name"),
		Start:    c.Query("start"),
		End:      c.Query("end"),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 0),
	}
}

// MyLogs lists the caller's own activity.
func (h *ActivityHandler) MyLogs(c *fiber.Ctx) error {
	page, err := h.activity.UserLogs(c.Context(), middleware.GetIdentity(c), logQuery(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, page)
}

func (h *ActivityHandler) Recent(c *fiber.Ctx) error {
	entries, err := h.activity.Recent(c.Context(), middleware.GetIdentity(c), c.QueryBool("all", false))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, entries)
}

// AllLogs lists every actor's activity. Admin only.
func (h *ActivityHandler) AllLogs(c *fiber.Ctx) error {
	page, err := h.activity.AllLogs(c.Context(), logQuery(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, page)
}

func (h *ActivityHandler) Export(c *fiber.Ctx) error {
	var req services.ExportRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request")
		}
	}
	out, err := h.activity.Export(c.Context(), middleware.GetIdentity(c), req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return created(c, out)
}
