package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anjiri1684/mentor_payouts/handlers"
)

func PublicRoutes(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func WebSocketRoutes(app *fiber.App, h *handlers.Handler) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	app.Get("/ws/admin", websocket.New(h.ServeAdminWs))
}

// Setup registers every route group.
func Setup(app *fiber.App, h *handlers.Handler) {
	PublicRoutes(app)
	AuthRoutes(app, h)
	AdminRoutes(app, h)
	WebSocketRoutes(app, h)
}
