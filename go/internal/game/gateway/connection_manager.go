package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/game/events"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/rs/zerolog/log"
)

// RoomCommands is what the gateway needs from the room store to act on
// behalf of a connected player.
type RoomCommands interface {
	ReconnectPlayer(ctx context.Context, code, playerID string) error
	LeaveRoom(ctx context.Context, code, playerID string) error
	SubmitAnswer(ctx context.Context, code, playerID string, answerIndex int, at time.Time) error
	NextQuestion(ctx context.Context, code, hostID string) error
	AbortGame(ctx context.Context, code, hostID string) error
	Snapshot(ctx context.Context, code, playerID string) (events.SnapshotPayload, error)
}

// ConnectionManager manages WebSocket connections for room events
type ConnectionManager struct {
	// Connection pools organized by room code
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock

	broadcastCh chan *events.Envelope

	// presence serializes connect and disconnect for a player so the
	// connection count and the room's connected flag change together.
	presence [presenceStripes]sync.Mutex
}

const presenceStripes = 64

// Connection represents a WebSocket connection to a player
type Connection struct {
	ID       string
	PlayerID string
	RoomCode string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager
	Commands RoomCommands

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	CommandTimeout  time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	QueueSize       int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		CommandTimeout:  5 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		QueueSize:       1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		broadcastCh: make(chan *events.Envelope, config.QueueSize),
	}
}

// Start fans queued envelopes out to local connections until ctx is done.
// A single loop keeps per-room order intact.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case env := <-cm.broadcastCh:
			cm.handleBroadcast(env)
		}
	}
}

// Publish queues an envelope for local delivery. It never blocks; a full
// queue is reported as a transport failure and the event is dropped.
func (cm *ConnectionManager) Publish(ctx context.Context, env *events.Envelope) error {
	select {
	case cm.broadcastCh <- env:
		return nil
	default:
		log.Warn().
			Str("room_code", env.RoomCode).
			Str("event_type", string(env.Type)).
			Msg("broadcast channel full, dropping message")
		return fmt.Errorf("%w: gateway queue full", models.ErrTransportUnavailable)
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, commands RoomCommands, code, playerID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		RoomCode:    code,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		Commands:    commands,
		ConnectedAt: cm.clock.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", playerID).
		Str("room_code", code).
		Msg("WebSocket connection established")

	return nil
}

// lockPresence locks the stripe guarding (code, playerID) and returns the
// unlock func.
func (cm *ConnectionManager) lockPresence(code, playerID string) func() {
	h := fnv.New32a()
	h.Write([]byte(code))
	h.Write([]byte{0})
	h.Write([]byte(playerID))
	mu := &cm.presence[h.Sum32()%presenceStripes]
	mu.Lock()
	return mu.Unlock
}

// playerConnections counts the player's registered connections in a room.
func (cm *ConnectionManager) playerConnections(code, playerID string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	n := 0
	for conn := range cm.roomConnections[code] {
		if conn.PlayerID == playerID {
			n++
		}
	}
	return n
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomCode] == nil {
		cm.roomConnections[conn.RoomCode] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomCode][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_code", conn.RoomCode).
		Int("total_connections", len(cm.roomConnections[conn.RoomCode])).
		Msg("connection registered")
}

// unregisterConnection removes a connection and reports whether it was the
// player's last one in the room. Safe to call more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) (removed, last bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.roomConnections[conn.RoomCode]
	if !exists || !connections[conn] {
		return false, false
	}
	delete(connections, conn)
	close(conn.Send)

	last = true
	for other := range connections {
		if other.PlayerID == conn.PlayerID {
			last = false
			break
		}
	}
	if len(connections) == 0 {
		delete(cm.roomConnections, conn.RoomCode)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", conn.PlayerID).
		Str("room_code", conn.RoomCode).
		Msg("connection unregistered")
	return true, last
}

// disconnect unregisters conn and soft-leaves the player once their last
// connection is gone.
func (cm *ConnectionManager) disconnect(conn *Connection) {
	unlock := cm.lockPresence(conn.RoomCode, conn.PlayerID)
	defer unlock()

	removed, last := cm.unregisterConnection(conn)
	conn.Conn.Close()
	if !removed || !last {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cm.config.CommandTimeout)
	defer cancel()
	if err := conn.Commands.LeaveRoom(ctx, conn.RoomCode, conn.PlayerID); err != nil {
		log.Debug().
			Err(err).
			Str("room_code", conn.RoomCode).
			Str("player_id", conn.PlayerID).
			Msg("leave on disconnect ignored")
	}
}

// handleBroadcast delivers one envelope. Direct envelopes only reach the
// target player's connections.
func (cm *ConnectionManager) handleBroadcast(env *events.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	delivered := 0

	cm.mu.RLock()
	for conn := range cm.roomConnections[env.RoomCode] {
		if env.Direct && conn.PlayerID != env.PlayerID {
			continue
		}
		select {
		case conn.Send <- data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("player_id", conn.PlayerID).
			Msg("connection send buffer full, closing connection")
		cm.disconnect(conn)
	}

	log.Debug().
		Str("event_type", string(env.Type)).
		Str("room_code", env.RoomCode).
		Uint64("seq", env.Seq).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// sendTo writes a reply to a single connection if it is still registered.
func (cm *ConnectionManager) sendTo(conn *Connection, env *events.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal reply")
		return
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.roomConnections[conn.RoomCode][conn] {
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Warn().Str("connection_id", conn.ID).Msg("dropping reply to slow connection")
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.roomConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// ConnectionStats summarises active connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveRooms:     len(cm.roomConnections),
		RoomConnections: make(map[string]int, len(cm.roomConnections)),
	}
	for code, connections := range cm.roomConnections {
		stats.TotalConnections += len(connections)
		stats.RoomConnections[code] = len(connections)
	}
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Manager.disconnect(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading commands from the WebSocket connection
func (c *Connection) readPump() {
	defer c.Manager.disconnect(c)

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		// Answers are timestamped on arrival, before any processing.
		receivedAt := c.Manager.clock.Now()
		if leave := c.handleClientMessage(message, receivedAt); leave {
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage executes one client command and reports whether the
// connection should close.
func (c *Connection) handleClientMessage(message []byte, receivedAt time.Time) bool {
	cm := c.Manager
	var msg events.ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.replyError("", models.NewError(models.KindInvalidConfig, "malformed message"))
		return false
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("player_id", c.PlayerID).
		Str("command", string(msg.Type)).
		Msg("received client message")

	ctx, cancel := context.WithTimeout(context.Background(), cm.config.CommandTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case events.ClientSubmitAnswer:
		if msg.AnswerIndex == nil {
			err = models.NewError(models.KindInvalidConfig, "answer_index is required")
			break
		}
		// Rejections from a live room already reach the player as AnswerRejected.
		if serr := c.Commands.SubmitAnswer(ctx, c.RoomCode, c.PlayerID, *msg.AnswerIndex, receivedAt); models.KindOf(serr) == models.KindRoomNotFound {
			err = serr
		}
	case events.ClientRequestSnapshot:
		var snap events.SnapshotPayload
		snap, err = c.Commands.Snapshot(ctx, c.RoomCode, c.PlayerID)
		if err == nil {
			c.reply(events.EventTypeSnapshot, snap.Seq, snap)
		}
	case events.ClientNext:
		err = c.Commands.NextQuestion(ctx, c.RoomCode, c.PlayerID)
	case events.ClientAbort:
		err = c.Commands.AbortGame(ctx, c.RoomCode, c.PlayerID)
	case events.ClientLeave:
		return true
	default:
		err = models.NewError(models.KindInvalidConfig, "unknown command %q", msg.Type)
	}

	if err != nil {
		c.replyError(msg.Type, err)
	}
	return false
}

func (c *Connection) reply(eventType events.EventType, seq uint64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal reply payload")
		return
	}
	c.Manager.sendTo(c, &events.Envelope{
		ID:        uuid.New().String(),
		RoomCode:  c.RoomCode,
		Seq:       seq,
		Type:      eventType,
		Direct:    true,
		PlayerID:  c.PlayerID,
		Timestamp: c.Manager.clock.Now(),
		Data:      data,
	})
}

func (c *Connection) replyError(command events.ClientMessageType, err error) {
	payload := events.ErrorPayload{Command: string(command), Message: "internal error"}
	var merr *models.Error
	if errors.As(err, &merr) {
		payload.Kind = string(merr.Kind)
		payload.Message = merr.Message
	} else {
		log.Error().Err(err).Str("connection_id", c.ID).Str("command", string(command)).Msg("client command failed")
	}
	c.reply(events.EventTypeError, 0, payload)
}
