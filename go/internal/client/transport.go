package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/trivia/go/internal/game/events"
)

// Conn is one live subscription to a room.
type Conn interface {
	// Receive blocks until the next envelope or a connection error.
	Receive() (*events.Envelope, error)
	Send(msg events.ClientMessage) error
	Close() error
}

// Transport opens subscriptions.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebSocketTransport dials the gateway's room endpoint.
type WebSocketTransport struct {
	BaseURL      string // http(s) or ws(s) base of the server
	RoomCode     string
	PlayerID     string
	Dialer       *websocket.Dialer
	WriteTimeout time.Duration
}

func NewWebSocketTransport(baseURL, code, playerID string) *WebSocketTransport {
	return &WebSocketTransport{
		BaseURL:      baseURL,
		RoomCode:     code,
		PlayerID:     playerID,
		Dialer:       websocket.DefaultDialer,
		WriteTimeout: 10 * time.Second,
	}
}

// URL is the websocket endpoint for this player.
func (t *WebSocketTransport) URL() (string, error) {
	u, err := url.Parse(t.BaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/rooms/" + url.PathEscape(t.RoomCode)
	u.RawQuery = url.Values{"player_id": {t.PlayerID}}.Encode()
	return u.String(), nil
}

func (t *WebSocketTransport) Dial(ctx context.Context) (Conn, error) {
	endpoint, err := t.URL()
	if err != nil {
		return nil, err
	}
	conn, resp, err := t.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, &DialError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	return &wsConn{conn: conn, writeTimeout: t.WriteTimeout}, nil
}

// DialError is a handshake the server refused. Retrying does not help
// when the player is no longer a member of the room.
type DialError struct {
	StatusCode int
	Err        error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("handshake rejected with status %d: %v", e.StatusCode, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// Permanent reports whether the rejection will not change on retry.
func (e *DialError) Permanent() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusForbidden
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) Receive() (*events.Envelope, error) {
	var env events.Envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *wsConn) Send(msg events.ClientMessage) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
