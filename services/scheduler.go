// services/scheduler.go
package services

import (
	"log"
	"os"
	"strconv"
	"time"

	"card-battle-system/models"

	"github.com/go-co-op/gocron/v2"
)

const defaultRoomTTLMinutes = 60

// StartExpirySweeper removes rooms abandoned in open/ready before a battle
// ever started. TTL comes from ROOM_TTL_MINUTES; 0 disables sweeping.
func (s *LobbyService) StartExpirySweeper() {
	ttl := defaultRoomTTLMinutes
	if v := os.Getenv("ROOM_TTL_MINUTES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			ttl = parsed
		}
	}
	if ttl <= 0 {
		log.Println("[Sweeper] ROOM_TTL_MINUTES=0 — stale room sweeping disabled")
		return
	}

	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			cutoff := time.Now().Add(-time.Duration(ttl) * time.Minute)
			if err := s.sweepStaleRooms(cutoff); err != nil {
				log.Printf("[Sweeper] DB error: %v", err)
			}
		}),
	)
}

func (s *LobbyService) sweepStaleRooms(cutoff time.Time) error {
	var rooms []models.Room
	err := s.DB.
		Where("status IN ? AND updated_at <= ?",
			[]string{models.RoomStatusOpen, models.RoomStatusReady}, cutoff).
		Find(&rooms).Error
	if err != nil {
		return err
	}

	for _, r := range rooms {
		// Unscoped: the row must actually go so the code leaves the
		// active-code unique index.
		if err := s.DB.Unscoped().Delete(&models.Room{}, "id = ?", r.ID).Error; err != nil {
			log.Printf("[Sweeper] Failed to expire room %s: %v", r.Code, err)
			continue
		}
		s.Realtime.PublishRoomChange(r.Code, EventTypeDeleted, &r)
		log.Printf("✅ Expired stale room: %s (idle since %s)", r.Code, r.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
