// handlers/realtime.go
package handlers

import (
	"card-battle-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRealtimeRoutes(app *fiber.App, realtimeService *services.RealtimeService) {
	// One channel per room code: room-row and battle-log change events
	app.Get("/realtime/:code/stream", realtimeService.StreamRoomSSE)

	// Ephemeral side channel — payloads reach subscribers but are never stored
	app.Post("/realtime/:code/broadcast", realtimeService.BroadcastEphemeral)
}
