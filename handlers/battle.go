// handlers/battle.go
package handlers

import (
	"card-battle-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBattleRoutes(app *fiber.App, battleService *services.BattleService, lobbyService *services.LobbyService) {
	app.Get("/battle/status", battleService.GetStatus)
	app.Get("/battle/logs", battleService.GetLogs)
	app.Post("/battle/attack", battleService.AttackEndpoint)

	// Lifecycle transition ready -> playing, driven by clients once both
	// countdowns finish
	app.Post("/battle/start", lobbyService.StartRoom)
}
