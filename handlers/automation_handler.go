package handlers

import (
	"github.com/gofiber/fiber/v2"
)

const maxAuditEvents = 500

// RunAutomation triggers a settlement run immediately and returns its report.
func (h *Handler) RunAutomation(c *fiber.Ctx) error {
	h.Logger.WithField("actor", actor(c)).Info("Manual settlement run requested")
	report, err := h.Automation.RunOnce(c.UserContext())
	if err != nil {
		if report != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error(), "report": report})
		}
		return h.fail(c, err)
	}
	return c.JSON(report)
}

func (h *Handler) ListAuditEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit <= 0 || limit > maxAuditEvents {
		limit = maxAuditEvents
	}
	events, err := h.Store.ListAuditEvents(c.UserContext(), limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(events)
}
