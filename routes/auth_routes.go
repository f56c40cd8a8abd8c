package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/anjiri1684/mentor_payouts/handlers"
)

func AuthRoutes(app *fiber.App, h *handlers.Handler) {
	api := app.Group("/api/v1")
	auth := api.Group("/auth")
	auth.Post("/login", h.Login)
}
