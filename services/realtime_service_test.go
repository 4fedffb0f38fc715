package services

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"card-battle-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func drainEvents(sub *Subscription) []Event {
	var events []Event
	for {
		select {
		case ev := <-sub.Events:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestPublishReachesRoomSubscribersOnly(t *testing.T) {
	_, _, realtime := newTestServices(t)

	subA1 := realtime.Subscribe("AAAA")
	subA2 := realtime.Subscribe("AAAA")
	subB := realtime.Subscribe("BBBB")

	realtime.PublishRoomChange("AAAA", EventTypeUpdated, &models.Room{Code: "AAAA"})

	for _, sub := range []*Subscription{subA1, subA2} {
		events := drainEvents(sub)
		require.Len(t, events, 1)
		require.Equal(t, EntityRoom, events[0].Entity)
		require.Equal(t, EventTypeUpdated, events[0].Type)
	}
	require.Empty(t, drainEvents(subB))
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	_, _, realtime := newTestServices(t)

	sub := realtime.Subscribe("AAAA")
	for i := 0; i < subscriberBuffer+5; i++ {
		realtime.PublishLogInsert("AAAA", &models.BattleLogEntry{RoomCode: "AAAA", Damage: i})
	}
	require.Len(t, drainEvents(sub), subscriberBuffer)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	_, _, realtime := newTestServices(t)

	sub := realtime.Subscribe("AAAA")
	realtime.Unsubscribe(sub)

	_, open := <-sub.Events
	require.False(t, open)

	// Publishing after teardown must not panic
	realtime.PublishRoomChange("AAAA", EventTypeUpdated, &models.Room{Code: "AAAA"})

	// Double unsubscribe is a no-op
	realtime.Unsubscribe(sub)
}

func TestAttackFansOutRoomAndLogEvents(t *testing.T) {
	lobby, battle, realtime := newTestServices(t)
	room := playingRoom(t, lobby)

	sub := realtime.Subscribe(room.Code)
	_, err := battle.Attack(room.Code, player1Addr, 30)
	require.NoError(t, err)

	events := drainEvents(sub)
	require.Len(t, events, 2)

	require.Equal(t, EntityRoom, events[0].Entity)
	require.Equal(t, EventTypeUpdated, events[0].Type)
	updated, ok := events[0].Payload.(*models.Room)
	require.True(t, ok)
	require.NotNil(t, updated.Health2)
	require.Equal(t, 70, *updated.Health2)

	require.Equal(t, EntityBattleLog, events[1].Entity)
	require.Equal(t, EventTypeInserted, events[1].Type)
	entry, ok := events[1].Payload.(*models.BattleLogEntry)
	require.True(t, ok)
	require.Equal(t, player1Addr, entry.Attacker)
	require.Equal(t, 30, entry.Damage)
}

func TestJoinAndLeavePublishRoomEvents(t *testing.T) {
	lobby, _, realtime := newTestServices(t)

	room, err := lobby.CreateRoomForPlayer(player1Addr, testStats())
	require.NoError(t, err)

	sub := realtime.Subscribe(room.Code)

	_, err = lobby.JoinRoom(room.Code, player2Addr, testStats())
	require.NoError(t, err)
	_, err = lobby.LeaveRoom(room.Code, player2Addr)
	require.NoError(t, err)
	_, err = lobby.LeaveRoom(room.Code, player1Addr)
	require.NoError(t, err)

	events := drainEvents(sub)
	require.Len(t, events, 3)
	require.Equal(t, EventTypeUpdated, events[0].Type)
	require.Equal(t, EventTypeUpdated, events[1].Type)
	require.Equal(t, EventTypeDeleted, events[2].Type)
}

func TestBroadcastEphemeralEndpoint(t *testing.T) {
	lobby, _, realtime := newTestServices(t)

	room, err := lobby.CreateRoomForPlayer(player1Addr, testStats())
	require.NoError(t, err)

	app := fiber.New()
	app.Post("/realtime/:code/broadcast", realtime.BroadcastEphemeral)

	sub := realtime.Subscribe(room.Code)

	req := httptest.NewRequest("POST", "/realtime/"+room.Code+"/broadcast",
		bytes.NewBufferString(`{"cardArtUrl":"https://cdn.example.com/cards/fire-drake.png"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	events := drainEvents(sub)
	require.Len(t, events, 1)
	require.Equal(t, EntityBroadcast, events[0].Entity)
	require.Equal(t, EventTypeMessage, events[0].Type)
	payload, ok := events[0].Payload.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "https://cdn.example.com/cards/fire-drake.png", payload["cardArtUrl"])

	// Unknown rooms have no channel
	req = httptest.NewRequest("POST", "/realtime/ZZZZ/broadcast",
		bytes.NewBufferString(`{"x":1}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 404, resp.StatusCode)
}
