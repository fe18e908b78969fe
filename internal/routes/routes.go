package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/handlers"
)

// SetupRoutes configures all application routes with dependencies
func SetupRoutes(app *fiber.App, events *handlers.EventsHandler, queue *handlers.QueueHandler, health *handlers.HealthHandler) {
	app.Get("/health", health.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")
	{
		api.Post("/events", events.Collect)
		api.Get("/queue/entries", queue.GetEntries)
	}
}
