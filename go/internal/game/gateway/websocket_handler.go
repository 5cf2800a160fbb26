package gateway

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/trivia/go/internal/game/room"
	"github.com/mcdev12/trivia/go/internal/httputil"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for room connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	commands          RoomCommands
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, commands RoomCommands) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		commands:          commands,
	}
}

// HandleRoomConnection attaches a player to a room's event stream. The
// player must already belong to the room; connecting marks them connected.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	code := room.NormalizeCode(chi.URLParam(r, "code"))
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		httputil.WriteError(w, r, models.NewError(models.KindInvalidConfig, "player_id is required"))
		return
	}

	// Marking the player connected and registering the socket happen under
	// one presence lock, so a closing socket of the same player cannot
	// soft-leave them in between.
	unlock := h.connectionManager.lockPresence(code, playerID)
	defer unlock()

	if err := h.commands.ReconnectPlayer(r.Context(), code, playerID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	// The upgrader has already answered the request when this fails.
	if err := h.connectionManager.UpgradeConnection(w, r, h.commands, code, playerID); err != nil {
		log.Error().
			Err(err).
			Str("room_code", code).
			Str("player_id", playerID).
			Msg("failed to upgrade WebSocket connection")

		if h.connectionManager.playerConnections(code, playerID) > 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.connectionManager.config.CommandTimeout)
		defer cancel()
		if leaveErr := h.commands.LeaveRoom(ctx, code, playerID); leaveErr != nil {
			log.Debug().Err(leaveErr).Msg("leave after failed upgrade ignored")
		}
	}
}
