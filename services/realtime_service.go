package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"card-battle-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event entities — subscribers use these to tell a room-row change from a
// log insertion or an ephemeral broadcast.
const (
	EntityRoom      = "room"
	EntityBattleLog = "battle_log"
	EntityBroadcast = "broadcast"
)

const (
	EventTypeSnapshot = "snapshot"
	EventTypeCreated  = "created"
	EventTypeUpdated  = "updated"
	EventTypeDeleted  = "deleted"
	EventTypeInserted = "inserted"
	EventTypeMessage  = "message"
)

const subscriberBuffer = 16

// Event is one change-feed frame. It is a "state may have changed" signal,
// not an authoritative delta: a client that misses frames must re-read the
// room instead of replaying history.
type Event struct {
	Entity  string      `json:"entity"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Subscription is one consumer's handle on a room's change feed.
type Subscription struct {
	ID       string
	RoomCode string
	Events   chan Event
}

// RealtimeService fans room and battle-log changes out to every subscriber
// of a room, and carries the ephemeral broadcast channel for payloads that
// must reach the other player but are never persisted.
type RealtimeService struct {
	DB *gorm.DB

	mu   sync.RWMutex
	subs map[string]map[string]*Subscription // room code -> subscription id
}

func NewRealtimeService(db *gorm.DB) *RealtimeService {
	return &RealtimeService{
		DB:   db,
		subs: make(map[string]map[string]*Subscription),
	}
}

func (s *RealtimeService) Subscribe(roomCode string) *Subscription {
	sub := &Subscription{
		ID:       uuid.NewString(),
		RoomCode: roomCode,
		Events:   make(chan Event, subscriberBuffer),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[roomCode] == nil {
		s.subs[roomCode] = make(map[string]*Subscription)
	}
	s.subs[roomCode][sub.ID] = sub
	return sub
}

func (s *RealtimeService) Unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.subs[sub.RoomCode]
	if !ok {
		return
	}
	if _, ok := room[sub.ID]; !ok {
		return
	}
	delete(room, sub.ID)
	if len(room) == 0 {
		delete(s.subs, sub.RoomCode)
	}
	close(sub.Events)
}

// Publish pushes an event to every subscriber of a room. Sends never block:
// a subscriber whose buffer is full loses the frame and re-syncs from the
// room snapshot on its next connect.
func (s *RealtimeService) Publish(roomCode string, ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs[roomCode] {
		select {
		case sub.Events <- ev:
		default:
		}
	}
}

func (s *RealtimeService) PublishRoomChange(roomCode, eventType string, room *models.Room) {
	s.Publish(roomCode, Event{Entity: EntityRoom, Type: eventType, Payload: room})
}

func (s *RealtimeService) PublishLogInsert(roomCode string, entry *models.BattleLogEntry) {
	s.Publish(roomCode, Event{Entity: EntityBattleLog, Type: EventTypeInserted, Payload: entry})
}

// ---------- HTTP endpoints ----------

// StreamRoomSSE handles GET /realtime/:code/stream — the change feed for one
// room, delivered as server-sent events. The first frame is always a room
// snapshot so a reconnecting client converges before any deltas arrive.
func (s *RealtimeService) StreamRoomSSE(c *fiber.Ctx) error {
	code := c.Params("code")
	room, err := activeRoom(s.DB, code)
	if err != nil {
		return respondServiceError(c, err)
	}

	sub := s.Subscribe(code)
	ctx := c.Context()

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer s.Unsubscribe(sub)

		if !writeSSE(w, Event{Entity: EntityRoom, Type: EventTypeSnapshot, Payload: room}) {
			return
		}

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case ev, ok := <-sub.Events:
				if !ok {
					return
				}
				if !writeSSE(w, ev) {
					return
				}
			case <-keepalive.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func writeSSE(w *bufio.Writer, ev Event) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		return true
	}
	fmt.Fprintf(w, "event: change\ndata: %s\n\n", payload)
	return w.Flush() == nil
}

// BroadcastEphemeral handles POST /realtime/:code/broadcast — fan a payload
// out to the room's subscribers without touching the store. Used for the
// one-shot card-art exchange at match start.
func (s *RealtimeService) BroadcastEphemeral(c *fiber.Ctx) error {
	code := c.Params("code")
	if _, err := activeRoom(s.DB, code); err != nil {
		return respondServiceError(c, err)
	}

	var payload map[string]interface{}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if len(payload) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "payload is required"})
	}

	s.Publish(code, Event{Entity: EntityBroadcast, Type: EventTypeMessage, Payload: payload})
	return c.JSON(fiber.Map{"message": "broadcast delivered"})
}
