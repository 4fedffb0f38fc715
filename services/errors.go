package services

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

// Service-level error taxonomy. Endpoint methods map these onto HTTP
// statuses; everything else is treated as a database error.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is already full")
	ErrNotInRoom          = errors.New("player is not part of this room")
	ErrRoomNotReady       = errors.New("room does not have two players yet")
	ErrBattleNotStarted   = errors.New("battle has not started yet")
	ErrBattleFinished     = errors.New("battle is already over")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique room code")
)

func respondServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrRoomFull),
		errors.Is(err, ErrNotInRoom),
		errors.Is(err, ErrRoomNotReady),
		errors.Is(err, ErrBattleNotStarted),
		errors.Is(err, ErrBattleFinished),
		errors.Is(err, ErrNotYourTurn):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrCodeSpaceExhausted):
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	log.Printf("DB Error: %v", err)
	return c.Status(500).JSON(fiber.Map{"error": "database error"})
}
