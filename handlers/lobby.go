// handlers/lobby.go
package handlers

import (
	"card-battle-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLobbyRoutes(app *fiber.App, lobbyService *services.LobbyService, cardArtService *services.CardArtService) {
	app.Post("/lobby", lobbyService.CreateRoom)
	app.Patch("/lobby", lobbyService.UpdateRoom)
	app.Get("/lobby/:code", lobbyService.GetRoom)

	// Cosmetic card art — hosted here, delivered to the opponent over the
	// ephemeral broadcast channel
	app.Post("/cards/art", cardArtService.UploadCardArt)
}
