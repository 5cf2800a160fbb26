package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the wire structure for every room event and direct reply.
// Room events carry a per-room sequence number that increases by one per
// event; direct replies carry the room's current sequence without
// consuming one.
type Envelope struct {
	ID        string          `json:"id"`
	RoomCode  string          `json:"room_code"`
	Seq       uint64          `json:"seq"`
	Type      EventType       `json:"type"`
	Direct    bool            `json:"direct,omitempty"`
	PlayerID  string          `json:"player_id,omitempty"` // reply target when Direct
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType represents the type of room event
type EventType string

const (
	EventTypePlayerJoined      EventType = "PlayerJoined"
	EventTypePlayerLeft        EventType = "PlayerLeft"
	EventTypePlayerReconnected EventType = "PlayerReconnected"
	EventTypeHostChanged       EventType = "HostChanged"
	EventTypeGameStarted       EventType = "GameStarted"
	EventTypeQuestionStarted   EventType = "QuestionStarted"
	EventTypeAnswerReceived    EventType = "AnswerReceived"
	EventTypeQuestionResults   EventType = "QuestionResults"
	EventTypeGameOver          EventType = "GameOver"
	EventTypeRoomClosed        EventType = "RoomClosed"

	// Reply path
	EventTypeAnswerAccepted EventType = "AnswerAccepted"
	EventTypeAnswerRejected EventType = "AnswerRejected"
	EventTypeSnapshot       EventType = "Snapshot"
	EventTypeError          EventType = "Error"
)

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(env *Envelope) (any, error) {
	var target any
	switch env.Type {
	case EventTypePlayerJoined:
		target = &PlayerJoinedPayload{}
	case EventTypePlayerLeft:
		target = &PlayerLeftPayload{}
	case EventTypePlayerReconnected:
		target = &PlayerReconnectedPayload{}
	case EventTypeHostChanged:
		target = &HostChangedPayload{}
	case EventTypeGameStarted:
		target = &GameStartedPayload{}
	case EventTypeQuestionStarted:
		target = &QuestionStartedPayload{}
	case EventTypeAnswerReceived:
		target = &AnswerReceivedPayload{}
	case EventTypeQuestionResults:
		target = &QuestionResultsPayload{}
	case EventTypeGameOver:
		target = &GameOverPayload{}
	case EventTypeRoomClosed:
		target = &RoomClosedPayload{}
	case EventTypeAnswerAccepted:
		target = &AnswerAcceptedPayload{}
	case EventTypeAnswerRejected:
		target = &AnswerRejectedPayload{}
	case EventTypeSnapshot:
		target = &SnapshotPayload{}
	case EventTypeError:
		target = &ErrorPayload{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", env.Type)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return target, nil
}

// ClientMessageType names a command sent by a client over its connection.
type ClientMessageType string

const (
	ClientSubmitAnswer    ClientMessageType = "submit_answer"
	ClientRequestSnapshot ClientMessageType = "request_snapshot"
	ClientNext            ClientMessageType = "next"
	ClientAbort           ClientMessageType = "abort"
	ClientLeave           ClientMessageType = "leave"
)

// ClientMessage is a command from a connected client.
type ClientMessage struct {
	Type        ClientMessageType `json:"type"`
	AnswerIndex *int              `json:"answer_index,omitempty"`
}
