package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/mentor_payouts/handlers"
	"github.com/anjiri1684/mentor_payouts/middleware"
)

func AdminRoutes(app *fiber.App, h *handlers.Handler) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(h.JWTSecret), middleware.AdminRequired())

	mentors := admin.Group("/mentors")
	mentors.Get("", h.ListMentors)
	mentors.Post("", h.CreateMentor)

	sessions := admin.Group("/sessions")
	sessions.Get("", h.ListSessions)
	sessions.Post("", h.CreateSession)
	sessions.Put("/:sessionId", h.UpdateSession)

	payouts := admin.Group("/payouts")
	payouts.Get("", h.ListPayouts)
	payouts.Post("", h.CreateReceipt)
	payouts.Post("/preview", h.PreviewPayout)
	payouts.Get("/:payoutId", h.GetPayout)
	payouts.Patch("/:payoutId/status", h.UpdatePayoutStatus)
	payouts.Post("/:payoutId/settle", h.SettlePayout)
	payouts.Get("/:payoutId/receipt", h.GetReceiptHTML)
	payouts.Get("/:payoutId/receipt.pdf", h.GetReceiptPDF)
	payouts.Post("/:payoutId/receipt/publish", h.PublishReceipt)

	admin.Post("/automation/run", h.RunAutomation)
	admin.Get("/audit-events", h.ListAuditEvents)
}
