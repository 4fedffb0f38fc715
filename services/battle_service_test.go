package services

import (
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"card-battle-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestFirstMoveBelongsToPlayer1(t *testing.T) {
	lobby, battle, _ := newTestServices(t)
	room := playingRoom(t, lobby)

	_, err := battle.Attack(room.Code, player2Addr, 30)
	require.ErrorIs(t, err, ErrNotYourTurn)

	result, err := battle.Attack(room.Code, player1Addr, 30)
	require.NoError(t, err)
	require.Equal(t, 70, result.NewHealth)
	require.Equal(t, player2Addr, result.TargetPlayer)
	require.False(t, result.GameOver)
}

func TestTurnsAlternate(t *testing.T) {
	lobby, battle, _ := newTestServices(t)
	room := playingRoom(t, lobby)

	_, err := battle.Attack(room.Code, player1Addr, 10)
	require.NoError(t, err)

	// Attacking twice in a row is rejected
	_, err = battle.Attack(room.Code, player1Addr, 10)
	require.ErrorIs(t, err, ErrNotYourTurn)

	_, err = battle.Attack(room.Code, player2Addr, 15)
	require.NoError(t, err)

	_, err = battle.Attack(room.Code, player1Addr, 20)
	require.NoError(t, err)

	logs, err := battle.RecentLogs(room.Code, 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	// Newest first, attackers strictly alternating starting with player1
	require.Equal(t, player1Addr, logs[0].Attacker)
	require.Equal(t, 20, logs[0].Damage)
	require.Equal(t, player2Addr, logs[1].Attacker)
	require.Equal(t, player1Addr, logs[2].Attacker)

	status, err := battle.Status(room.Code)
	require.NoError(t, err)
	require.NotNil(t, status.CurrentTurn)
	require.Equal(t, player2Addr, *status.CurrentTurn)
}

func TestHealthClampsAndBattleCompletes(t *testing.T) {
	lobby, battle, _ := newTestServices(t)
	room := playingRoom(t, lobby)

	// Hand the turn to player2, then leave player1 at 25 health
	_, err := battle.Attack(room.Code, player1Addr, 10)
	require.NoError(t, err)
	err = battle.DB.Model(&models.Room{}).Where("id = ?", room.ID).
		UpdateColumn("health1", 25).Error
	require.NoError(t, err)

	result, err := battle.Attack(room.Code, player2Addr, 40)
	require.NoError(t, err)
	require.Equal(t, 0, result.NewHealth, "health clamps at zero, never negative")
	require.Equal(t, player1Addr, result.TargetPlayer)
	require.True(t, result.GameOver)

	status, err := battle.Status(room.Code)
	require.NoError(t, err)
	require.Equal(t, models.RoomStatusCompleted, status.Status)
}

func TestAttackAfterCompletion(t *testing.T) {
	lobby, battle, _ := newTestServices(t)
	room := playingRoom(t, lobby)

	_, err := battle.Attack(room.Code, player1Addr, 100)
	require.NoError(t, err)

	_, err = battle.Attack(room.Code, player2Addr, 10)
	require.ErrorIs(t, err, ErrBattleFinished)
}

func TestAttackOnUnknownRoom(t *testing.T) {
	_, battle, _ := newTestServices(t)

	_, err := battle.Attack("ZZZZ", player1Addr, 10)
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestAttackBeforeStart(t *testing.T) {
	lobby, battle, _ := newTestServices(t)

	room, err := lobby.CreateRoomForPlayer(player1Addr, testStats())
	require.NoError(t, err)
	_, err = lobby.JoinRoom(room.Code, player2Addr, testStats())
	require.NoError(t, err)

	_, err = battle.Attack(room.Code, player1Addr, 10)
	require.ErrorIs(t, err, ErrBattleNotStarted)
}

func TestAttackByStranger(t *testing.T) {
	lobby, battle, _ := newTestServices(t)
	room := playingRoom(t, lobby)

	_, err := battle.Attack(room.Code, player3Addr, 10)
	require.ErrorIs(t, err, ErrNotInRoom)
}

// Two clients race on the same legal turn; the conditional update lets
// exactly one through and the loser gets a turn conflict.
func TestConcurrentAttacksSingleWinner(t *testing.T) {
	lobby, battle, _ := newTestServices(t)
	room := playingRoom(t, lobby)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = battle.Attack(room.Code, player1Addr, 5)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, ErrNotYourTurn)
			conflicts++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, conflicts)

	logs, err := battle.RecentLogs(room.Code, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1, "only the winning attack may reach the log")
}

func TestRecentLogsEmptyHistory(t *testing.T) {
	lobby, battle, _ := newTestServices(t)
	room := playingRoom(t, lobby)

	logs, err := battle.RecentLogs(room.Code, 0)
	require.NoError(t, err)
	require.NotNil(t, logs)
	require.Empty(t, logs)

	app := fiber.New()
	app.Get("/battle/logs", battle.GetLogs)

	req := httptest.NewRequest("GET", "/battle/logs?roomCode="+room.Code, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `"logs":[]`)
}

func TestRecentLogsLimitAndLastAttacker(t *testing.T) {
	lobby, battle, _ := newTestServices(t)
	room := playingRoom(t, lobby)

	attackers := []string{player1Addr, player2Addr, player1Addr, player2Addr}
	for _, a := range attackers {
		_, err := battle.Attack(room.Code, a, 1)
		require.NoError(t, err)
	}

	logs, err := battle.RecentLogs(room.Code, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, player2Addr, logs[0].Attacker)
	require.Equal(t, player1Addr, logs[1].Attacker)
}
