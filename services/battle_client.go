// card-battle-system/services/battle_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"card-battle-system/models"
	"card-battle-system/utils"
)

// errTransport marks failures of the request path itself (connection
// refused, timeout), as opposed to an answer the server actually gave.
var errTransport = errors.New("request path unavailable")

// APIError is a non-2xx answer from the request path. It is the same
// verdict the store would give, so it is never retried on the direct path.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// BattleClient is the resilient facade over the battle API: every operation
// first goes through the HTTP surface and, when the transport fails, falls
// back to the identical operation against the store directly. Both paths
// end at the same ground truth.
type BattleClient struct {
	BaseURL string
	Client  *http.Client

	Lobby  *LobbyService
	Battle *BattleService
}

func NewBattleClient(baseURL string, lobby *LobbyService, battle *BattleService) *BattleClient {
	return &BattleClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  utils.HTTPClient,
		Lobby:   lobby,
		Battle:  battle,
	}
}

func (c *BattleClient) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%w: %v", errTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errTransport, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: decode: %v", errTransport, err)
		}
	}
	return nil
}

// fallsBack reports whether an error warrants the direct-store path. A
// refused answer (APIError) is final; only transport failures fall through.
func fallsBack(op string, err error) bool {
	if errors.Is(err, errTransport) {
		log.Printf("[Facade] %s: request path down, using direct store: %v", op, err)
		return true
	}
	return false
}

func (c *BattleClient) CreateRoom(ctx context.Context, player string, stats PlayerStats) (*models.Room, error) {
	body := map[string]interface{}{
		"playerAddress": player,
		"displayName":   stats.DisplayName,
		"health":        stats.Health,
		"attackMin":     stats.AttackMin,
		"attackMax":     stats.AttackMax,
	}
	var out struct {
		Data *models.Room `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/lobby", body, &out)
	if err == nil {
		return out.Data, nil
	}
	if !fallsBack("create", err) {
		return nil, err
	}
	return c.Lobby.CreateRoomForPlayer(player, stats)
}

func (c *BattleClient) JoinRoom(ctx context.Context, code, player string, stats PlayerStats) (*models.Room, error) {
	body := map[string]interface{}{
		"code":          code,
		"playerAddress": player,
		"action":        "join",
		"displayName":   stats.DisplayName,
		"health":        stats.Health,
		"attackMin":     stats.AttackMin,
		"attackMax":     stats.AttackMax,
	}
	var out struct {
		Data *models.Room `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodPatch, "/lobby", body, &out)
	if err == nil {
		return out.Data, nil
	}
	if !fallsBack("join", err) {
		return nil, err
	}
	return c.Lobby.JoinRoom(code, player, stats)
}

func (c *BattleClient) LeaveRoom(ctx context.Context, code, player string) (*models.Room, error) {
	body := map[string]interface{}{
		"code":          code,
		"playerAddress": player,
		"action":        "leave",
	}
	var out struct {
		Data *models.Room `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodPatch, "/lobby", body, &out)
	if err == nil {
		return out.Data, nil
	}
	if !fallsBack("leave", err) {
		return nil, err
	}
	return c.Lobby.LeaveRoom(code, player)
}

func (c *BattleClient) StartBattle(ctx context.Context, code string) (*models.Room, error) {
	var out struct {
		Data *models.Room `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/battle/start", map[string]string{"roomCode": code}, &out)
	if err == nil {
		return out.Data, nil
	}
	if !fallsBack("start", err) {
		return nil, err
	}
	return c.Lobby.StartBattle(code)
}

func (c *BattleClient) Attack(ctx context.Context, roomCode, attacker string, damage int) (*AttackResult, error) {
	body := map[string]interface{}{
		"roomCode": roomCode,
		"attacker": attacker,
		"damage":   damage,
	}
	var out AttackResult
	err := c.doJSON(ctx, http.MethodPost, "/battle/attack", body, &out)
	if err == nil {
		return &out, nil
	}
	if !fallsBack("attack", err) {
		return nil, err
	}
	return c.Battle.Attack(roomCode, attacker, damage)
}

func (c *BattleClient) RoomStatus(ctx context.Context, roomCode string) (*BattleStatus, error) {
	var out BattleStatus
	err := c.doJSON(ctx, http.MethodGet, "/battle/status?roomCode="+url.QueryEscape(roomCode), nil, &out)
	if err == nil {
		return &out, nil
	}
	if !fallsBack("status", err) {
		return nil, err
	}
	return c.Battle.Status(roomCode)
}

func (c *BattleClient) RecentLogs(ctx context.Context, roomCode string, limit int) ([]models.BattleLogEntry, error) {
	path := "/battle/logs?roomCode=" + url.QueryEscape(roomCode)
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Logs []models.BattleLogEntry `json:"logs"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	if err == nil {
		return out.Logs, nil
	}
	if !fallsBack("logs", err) {
		return nil, err
	}
	return c.Battle.RecentLogs(roomCode, limit)
}
