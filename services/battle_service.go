package services

import (
	"strconv"

	"card-battle-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultLogLimit = 10

// BattleService applies attacks and answers battle state reads. All health
// and status writes go through here or the lobby lifecycle, nothing else.
type BattleService struct {
	DB       *gorm.DB
	Realtime *RealtimeService
}

func NewBattleService(db *gorm.DB, realtime *RealtimeService) *BattleService {
	return &BattleService{DB: db, Realtime: realtime}
}

// AttackResult is what an attacker gets back: the defender's remaining
// health and whether the hit ended the battle.
type AttackResult struct {
	NewHealth    int    `json:"newHealth"`
	TargetPlayer string `json:"targetPlayer"`
	GameOver     bool   `json:"gameOver"`
}

// BattleStatus is the read shape for GET /battle/status.
type BattleStatus struct {
	Status      string  `json:"status"`
	Player1     string  `json:"player1"`
	Player2     *string `json:"player2"`
	CurrentTurn *string `json:"currentTurn"`
}

// Attack resolves one attack inside a single transaction. Turn legality is
// enforced by a conditional update keyed on current_turn: when two clients
// race on the same turn, the store serializes them and the second update
// matches zero rows, so exactly one attack lands and the loser gets
// ErrNotYourTurn. The log append rides in the same transaction.
func (s *BattleService) Attack(roomCode, attacker string, damage int) (*AttackResult, error) {
	var result AttackResult
	var entry models.BattleLogEntry
	var after *models.Room

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		room, err := activeRoom(tx, roomCode)
		if err != nil {
			return err
		}
		switch room.Status {
		case models.RoomStatusCompleted:
			return ErrBattleFinished
		case models.RoomStatusPlaying:
		default:
			return ErrBattleNotStarted
		}
		if room.Player2 == nil || room.Health2 == nil {
			return ErrRoomNotReady
		}

		var defender, healthColumn string
		var defenderHealth int
		switch attacker {
		case room.Player1:
			defender = *room.Player2
			healthColumn = "health2"
			defenderHealth = *room.Health2
		case *room.Player2:
			defender = room.Player1
			healthColumn = "health1"
			defenderHealth = room.Health1
		default:
			return ErrNotInRoom
		}

		newHealth := defenderHealth - damage
		if newHealth < 0 {
			newHealth = 0
		}
		status := models.RoomStatusPlaying
		gameOver := false
		if newHealth == 0 {
			status = models.RoomStatusCompleted
			gameOver = true
		}

		res := tx.Model(&models.Room{}).
			Where("id = ? AND status = ? AND current_turn = ?",
				room.ID, models.RoomStatusPlaying, attacker).
			Updates(map[string]interface{}{
				healthColumn:   newHealth,
				"current_turn": defender,
				"status":       status,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotYourTurn
		}

		entry = models.BattleLogEntry{
			ID:       uuid.NewString(),
			RoomCode: roomCode,
			Attacker: attacker,
			Damage:   damage,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		after, err = activeRoom(tx, roomCode)
		if err != nil {
			return err
		}
		result = AttackResult{NewHealth: newHealth, TargetPlayer: defender, GameOver: gameOver}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Realtime.PublishRoomChange(roomCode, EventTypeUpdated, after)
	s.Realtime.PublishLogInsert(roomCode, &entry)
	return &result, nil
}

// Status answers "what is this room doing and whose move is it".
func (s *BattleService) Status(roomCode string) (*BattleStatus, error) {
	room, err := activeRoom(s.DB, roomCode)
	if err != nil {
		return nil, err
	}
	return &BattleStatus{
		Status:      room.Status,
		Player1:     room.Player1,
		Player2:     room.Player2,
		CurrentTurn: room.CurrentTurn,
	}, nil
}

// RecentLogs returns a room's attack history, newest first.
func (s *BattleService) RecentLogs(roomCode string, limit int) ([]models.BattleLogEntry, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	// non-nil so an empty history serializes as [] rather than null
	logs := []models.BattleLogEntry{}
	err := s.DB.Where("room_code = ?", roomCode).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// ---------- HTTP endpoints ----------

type attackRequest struct {
	RoomCode string `json:"roomCode"`
	Attacker string `json:"attacker"`
	Damage   *int   `json:"damage"`
}

// AttackEndpoint handles POST /battle/attack
func (s *BattleService) AttackEndpoint(c *fiber.Ctx) error {
	var req attackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.RoomCode == "" || req.Attacker == "" || req.Damage == nil {
		return c.Status(400).JSON(fiber.Map{"error": "roomCode, attacker and damage are required"})
	}
	if *req.Damage < 0 {
		return c.Status(400).JSON(fiber.Map{"error": "damage must be non-negative"})
	}

	result, err := s.Attack(req.RoomCode, req.Attacker, *req.Damage)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"newHealth":    result.NewHealth,
		"targetPlayer": result.TargetPlayer,
		"gameOver":     result.GameOver,
	})
}

// GetStatus handles GET /battle/status?roomCode=
func (s *BattleService) GetStatus(c *fiber.Ctx) error {
	roomCode := c.Query("roomCode")
	if roomCode == "" {
		return c.Status(400).JSON(fiber.Map{"error": "roomCode is required"})
	}
	status, err := s.Status(roomCode)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(status)
}

// GetLogs handles GET /battle/logs?roomCode=&limit=
func (s *BattleService) GetLogs(c *fiber.Ctx) error {
	roomCode := c.Query("roomCode")
	if roomCode == "" {
		return c.Status(400).JSON(fiber.Map{"error": "roomCode is required"})
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	logs, err := s.RecentLogs(roomCode, limit)
	if err != nil {
		return respondServiceError(c, err)
	}
	lastAttacker := ""
	if len(logs) > 0 {
		lastAttacker = logs[0].Attacker
	}
	return c.JSON(fiber.Map{"logs": logs, "lastAttacker": lastAttacker})
}
