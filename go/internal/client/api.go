package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mcdev12/trivia/go/internal/game/events"
	"github.com/mcdev12/trivia/go/internal/game/room"
	"github.com/mcdev12/trivia/go/internal/httputil"
	"github.com/mcdev12/trivia/go/internal/models"
)

// API is a small HTTP client for the room endpoints.
type API struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func NewAPI(baseURL string) *API {
	return &API{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

func (c *API) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *API) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// do sends body as JSON and decodes a JSON response into out when non-nil.
// Error responses are turned back into *models.Error.
func (c *API) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr httputil.ErrorResponse
		if json.Unmarshal(responseBody, &apiErr) == nil && apiErr.Kind != "" {
			return &models.Error{Kind: models.ErrorKind(apiErr.Kind), Message: apiErr.Message}
		}
		return fmt.Errorf("API returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}

	if out != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *API) CreateRoom(ctx context.Context, req room.CreateRoomRequest) (room.CreateRoomResponse, error) {
	var resp room.CreateRoomResponse
	err := c.do(ctx, http.MethodPost, "/api/rooms", req, &resp)
	return resp, err
}

// JoinRoom validates the code locally before calling the server.
func (c *API) JoinRoom(ctx context.Context, code, nickname string) (room.JoinRoomResponse, error) {
	var resp room.JoinRoomResponse
	code = room.NormalizeCode(code)
	if err := room.ValidateCode(code, room.DefaultOptions().CodeLength); err != nil {
		return resp, err
	}
	err := c.do(ctx, http.MethodPost, "/api/rooms/"+code+"/join", room.JoinRoomRequest{Nickname: nickname}, &resp)
	return resp, err
}

func (c *API) StartGame(ctx context.Context, code, hostID string) error {
	return c.do(ctx, http.MethodPost, "/api/rooms/"+code+"/start", room.PlayerRequest{PlayerID: hostID}, nil)
}

func (c *API) GetRoom(ctx context.Context, code string) (room.RoomView, error) {
	var view room.RoomView
	err := c.do(ctx, http.MethodGet, "/api/rooms/"+code, nil, &view)
	return view, err
}

func (c *API) Leaderboard(ctx context.Context, code string) ([]events.LeaderboardEntry, error) {
	var board []events.LeaderboardEntry
	err := c.do(ctx, http.MethodGet, "/api/rooms/"+code+"/leaderboard", nil, &board)
	return board, err
}
