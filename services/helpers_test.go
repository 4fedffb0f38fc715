package services

import (
	"fmt"
	"sync/atomic"
	"testing"

	"card-battle-system/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	player1Addr = "0x1111111111111111111111111111111111111111"
	player2Addr = "0x2222222222222222222222222222222222222222"
	player3Addr = "0x3333333333333333333333333333333333333333"
)

var testDBCounter int64

// newTestDB opens a private shared-cache in-memory database. A single
// connection keeps SQLite from throwing lock errors at the concurrency
// tests; the store still serializes rival transactions the way Postgres
// would.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:battletest%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Room{}, &models.BattleLogEntry{}))
	return db
}

func newTestServices(t *testing.T) (*LobbyService, *BattleService, *RealtimeService) {
	t.Helper()
	db := newTestDB(t)
	realtime := NewRealtimeService(db)
	return NewLobbyService(db, realtime), NewBattleService(db, realtime), realtime
}

func testStats() PlayerStats {
	return PlayerStats{Health: 100, AttackMin: 20, AttackMax: 80}
}

// codeSequence replaces the random code source; the last code repeats once
// the sequence runs out.
func codeSequence(codes ...string) func() string {
	i := 0
	return func() string {
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c
	}
}

// playingRoom walks a fresh room through create, join and start.
func playingRoom(t *testing.T, lobby *LobbyService) *models.Room {
	t.Helper()
	room, err := lobby.CreateRoomForPlayer(player1Addr, testStats())
	require.NoError(t, err)
	_, err = lobby.JoinRoom(room.Code, player2Addr, testStats())
	require.NoError(t, err)
	room, err = lobby.StartBattle(room.Code)
	require.NoError(t, err)
	return room
}
