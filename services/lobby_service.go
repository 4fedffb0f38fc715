package services

import (
	"errors"
	"math/rand"

	"card-battle-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength      = 4
	maxCodeAttempts = 5
)

// Default card stats applied when the client does not send its own
const (
	defaultHealth    = 100
	defaultAttackMin = 20
	defaultAttackMax = 80
)

// PlayerStats carries the per-player card attributes supplied on create/join.
type PlayerStats struct {
	Health      int
	AttackMin   int
	AttackMax   int
	DisplayName string
}

// LobbyService owns the room lifecycle: create, join, leave, start.
type LobbyService struct {
	DB       *gorm.DB
	Realtime *RealtimeService

	// newCode is swapped out in tests to force collisions
	newCode func() string
}

func NewLobbyService(db *gorm.DB, realtime *RealtimeService) *LobbyService {
	return &LobbyService{DB: db, Realtime: realtime, newCode: randomCode}
}

func randomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// activeRoom loads the newest room for a code regardless of status, so a
// completed battle stays readable until its code is handed out again.
func activeRoom(db *gorm.DB, code string) (*models.Room, error) {
	var room models.Room
	err := db.Where("code = ?", code).Order("created_at DESC").First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

// CreateRoomForPlayer allocates a fresh lobby code and inserts the room in
// one step: the partial unique index on code rejects a collision with any
// non-terminal room, and we retry with a new candidate. There is no separate
// check-then-act window for two creators to race through.
func (s *LobbyService) CreateRoomForPlayer(player string, stats PlayerStats) (*models.Room, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		room := &models.Room{
			ID:         uuid.NewString(),
			Code:       s.newCode(),
			Player1:    player,
			Health1:    stats.Health,
			AttackMin1: stats.AttackMin,
			AttackMax1: stats.AttackMax,
			Status:     models.RoomStatusOpen,
		}
		if stats.DisplayName != "" {
			room.DisplayName1 = &stats.DisplayName
		}

		err := s.DB.Create(room).Error
		if err == nil {
			s.Realtime.PublishRoomChange(room.Code, EventTypeCreated, room)
			return room, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return nil, err
	}
	return nil, ErrCodeSpaceExhausted
}

// JoinRoom fills the player2 slot with a single conditional update: the
// guard on status and an empty slot means two racing joiners cannot both
// land in the same room.
func (s *LobbyService) JoinRoom(code, player string, stats PlayerStats) (*models.Room, error) {
	updates := map[string]interface{}{
		"player2":     player,
		"health2":     stats.Health,
		"attack_min2": stats.AttackMin,
		"attack_max2": stats.AttackMax,
		"status":      models.RoomStatusReady,
		// player1 always opens the battle
		"current_turn": gorm.Expr("player1"),
	}
	if stats.DisplayName != "" {
		updates["display_name2"] = stats.DisplayName
	}

	res := s.DB.Model(&models.Room{}).
		Where("code = ? AND status = ? AND player2 IS NULL", code, models.RoomStatusOpen).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Either the code is unknown or somebody got the slot first
		room, err := activeRoom(s.DB, code)
		if err != nil {
			return nil, err
		}
		if room.Status == models.RoomStatusCompleted {
			// a terminal room does not hold its code; nothing joinable here
			return nil, ErrRoomNotFound
		}
		return nil, ErrRoomFull
	}

	room, err := activeRoom(s.DB, code)
	if err != nil {
		return nil, err
	}
	s.Realtime.PublishRoomChange(code, EventTypeUpdated, room)
	return room, nil
}

// LeaveRoom handles both departures. Player2 leaving clears their slot and
// reverts the room to open (a no-op when the slot is already empty).
// Player1 leaving removes the room entirely; the battle log survives, rooms
// never do. Returns nil when the room was deleted.
func (s *LobbyService) LeaveRoom(code, player string) (*models.Room, error) {
	room, err := activeRoom(s.DB, code)
	if err != nil {
		return nil, err
	}
	if room.Status == models.RoomStatusCompleted {
		// completed is terminal: a finished battle can neither be reopened
		// nor removed, its record stays readable
		return nil, ErrBattleFinished
	}

	if room.Player1 == player {
		// Hard delete: a soft-deleted row would still hold the code in the
		// active-code unique index.
		if err := s.DB.Unscoped().Delete(&models.Room{}, "id = ?", room.ID).Error; err != nil {
			return nil, err
		}
		s.Realtime.PublishRoomChange(code, EventTypeDeleted, room)
		return nil, nil
	}

	if room.Player2 == nil {
		// Second leave in a row: nothing to undo
		return room, nil
	}
	if *room.Player2 != player {
		return nil, ErrNotInRoom
	}

	err = s.DB.Model(&models.Room{}).Where("id = ?", room.ID).Updates(map[string]interface{}{
		"player2":       nil,
		"health2":       nil,
		"attack_min2":   0,
		"attack_max2":   0,
		"display_name2": nil,
		"current_turn":  nil,
		"status":        models.RoomStatusOpen,
	}).Error
	if err != nil {
		return nil, err
	}

	room, err = activeRoom(s.DB, code)
	if err != nil {
		return nil, err
	}
	s.Realtime.PublishRoomChange(code, EventTypeUpdated, room)
	return room, nil
}

// StartBattle moves a ready room into playing once both clients have run
// their countdown. Calling it again while playing is a no-op.
func (s *LobbyService) StartBattle(code string) (*models.Room, error) {
	room, err := activeRoom(s.DB, code)
	if err != nil {
		return nil, err
	}
	switch room.Status {
	case models.RoomStatusPlaying:
		return room, nil
	case models.RoomStatusReady:
	case models.RoomStatusCompleted:
		return nil, ErrBattleFinished
	default:
		return nil, ErrRoomNotReady
	}

	res := s.DB.Model(&models.Room{}).
		Where("id = ? AND status = ?", room.ID, models.RoomStatusReady).
		Update("status", models.RoomStatusPlaying)
	if res.Error != nil {
		return nil, res.Error
	}

	room, err = activeRoom(s.DB, code)
	if err != nil {
		return nil, err
	}
	s.Realtime.PublishRoomChange(code, EventTypeUpdated, room)
	return room, nil
}

// ---------- HTTP endpoints ----------

type createRoomRequest struct {
	PlayerAddress string `json:"playerAddress"`
	DisplayName   string `json:"displayName"`
	Health        int    `json:"health"`
	AttackMin     int    `json:"attackMin"`
	AttackMax     int    `json:"attackMax"`
}

func (r *createRoomRequest) stats() PlayerStats {
	stats := PlayerStats{
		Health:      r.Health,
		AttackMin:   r.AttackMin,
		AttackMax:   r.AttackMax,
		DisplayName: r.DisplayName,
	}
	if stats.Health <= 0 {
		stats.Health = defaultHealth
	}
	if stats.AttackMin <= 0 {
		stats.AttackMin = defaultAttackMin
	}
	if stats.AttackMax <= 0 {
		stats.AttackMax = defaultAttackMax
	}
	if stats.AttackMax < stats.AttackMin {
		stats.AttackMax = stats.AttackMin
	}
	return stats
}

// CreateRoom handles POST /lobby
func (s *LobbyService) CreateRoom(c *fiber.Ctx) error {
	var req createRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.PlayerAddress == "" {
		return c.Status(400).JSON(fiber.Map{"error": "playerAddress is required"})
	}

	room, err := s.CreateRoomForPlayer(req.PlayerAddress, req.stats())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"code": room.Code, "data": room})
}

type updateRoomRequest struct {
	Code          string `json:"code"`
	PlayerAddress string `json:"playerAddress"`
	Action        string `json:"action"`
	DisplayName   string `json:"displayName"`
	Health        int    `json:"health"`
	AttackMin     int    `json:"attackMin"`
	AttackMax     int    `json:"attackMax"`
}

// UpdateRoom handles PATCH /lobby — join or leave by action
func (s *LobbyService) UpdateRoom(c *fiber.Ctx) error {
	var req updateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Code == "" || req.PlayerAddress == "" {
		return c.Status(400).JSON(fiber.Map{"error": "code and playerAddress are required"})
	}

	switch req.Action {
	case "join":
		stats := (&createRoomRequest{
			DisplayName: req.DisplayName,
			Health:      req.Health,
			AttackMin:   req.AttackMin,
			AttackMax:   req.AttackMax,
		}).stats()
		room, err := s.JoinRoom(req.Code, req.PlayerAddress, stats)
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(fiber.Map{"data": room})

	case "leave":
		room, err := s.LeaveRoom(req.Code, req.PlayerAddress)
		if err != nil {
			return respondServiceError(c, err)
		}
		if room == nil {
			return c.JSON(fiber.Map{"message": "room closed"})
		}
		return c.JSON(fiber.Map{"message": "left room", "data": room})

	default:
		return c.Status(400).JSON(fiber.Map{"error": "action must be 'join' or 'leave'"})
	}
}

// GetRoom handles GET /lobby/:code — snapshot read used by reconnecting clients
func (s *LobbyService) GetRoom(c *fiber.Ctx) error {
	room, err := activeRoom(s.DB, c.Params("code"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"data": room})
}

// StartRoom handles POST /battle/start
func (s *LobbyService) StartRoom(c *fiber.Ctx) error {
	var req struct {
		RoomCode string `json:"roomCode"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.RoomCode == "" {
		return c.Status(400).JSON(fiber.Map{"error": "roomCode is required"})
	}

	room, err := s.StartBattle(req.RoomCode)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"data": room})
}
