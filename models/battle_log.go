package models

import "time"

// BattleLogEntry records a single attack. The log is append-only: entries
// are never updated or deleted, and their created_at order doubles as the
// turn-order evidence for a room.
type BattleLogEntry struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	RoomCode string `gorm:"index;not null" json:"room_code"`
	Attacker string `gorm:"not null" json:"attacker"`
	Damage   int    `gorm:"not null" json:"damage"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
