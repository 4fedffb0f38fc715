package models

import (
	"time"

	"gorm.io/gorm"
)

// Room statuses. Status only moves forward, with two exceptions: player2
// leaving reverts ready/playing back to open, and player1 leaving deletes
// the room outright.
const (
	RoomStatusOpen      = "open"
	RoomStatusReady     = "ready"
	RoomStatusPlaying   = "playing"
	RoomStatusCompleted = "completed"
)

// Room is the durable record of one match between two players.
// The code is unique among non-terminal rooms only — once a battle is
// completed its code can be handed out again.
type Room struct {
	ID   string `gorm:"primaryKey;type:uuid" json:"id"`
	Code string `gorm:"type:varchar(4);not null;uniqueIndex:uniq_active_room_code,where:status <> 'completed'" json:"code"`

	Player1 string  `gorm:"index;not null" json:"player1"`
	Player2 *string `gorm:"index" json:"player2,omitempty"`

	Health1 int  `json:"health1"`
	Health2 *int `json:"health2,omitempty"` // nil until player2 joins

	AttackMin1 int `json:"attack_min1"`
	AttackMax1 int `json:"attack_max1"`
	AttackMin2 int `json:"attack_min2"`
	AttackMax2 int `json:"attack_max2"`

	// CurrentTurn holds the address allowed to attack next. It is set to
	// player1 when player2 joins and swapped in the same conditional update
	// that applies an attack, so two racing attacks cannot both pass it.
	CurrentTurn *string `json:"current_turn,omitempty"`

	Status string `gorm:"type:varchar(16);default:'open';check:status IN ('open','ready','playing','completed')" json:"status"`

	// Cosmetic labels, never consulted by battle logic
	DisplayName1 *string `json:"display_name1,omitempty"`
	DisplayName2 *string `json:"display_name2,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
