package models

import (
	"strings"
	"time"
)

// RoomState defines the lifecycle state of a room.
type RoomState string

const (
	RoomStateLobby      RoomState = "LOBBY"
	RoomStateInProgress RoomState = "IN_PROGRESS"
	RoomStateEnded      RoomState = "ENDED"
)

// RoomConfig holds the settings chosen by the host at creation time.
type RoomConfig struct {
	TimerSeconds int            `json:"timer_seconds"`
	MaxPlayers   int            `json:"max_players"`
	Source       QuestionSource `json:"source"`
}

// Room represents a trivia room and its ordered member list.
type Room struct {
	Code      string     `json:"code"`
	HostID    string     `json:"host_id"`
	Players   []Player   `json:"players"`
	Config    RoomConfig `json:"config"`
	State     RoomState  `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Clone returns a deep copy that shares no slices with r.
func (r Room) Clone() Room {
	out := r
	out.Players = make([]Player, len(r.Players))
	copy(out.Players, r.Players)
	out.Config.Source = r.Config.Source.Clone()
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		out.EndedAt = &t
	}
	return out
}

// Player returns a pointer into r.Players for the given id.
func (r *Room) Player(id string) *Player {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i]
		}
	}
	return nil
}

// ConnectedCount counts players currently marked CONNECTED.
func (r *Room) ConnectedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Connected() {
			n++
		}
	}
	return n
}

// ConnectedGuests counts connected players other than the host.
func (r *Room) ConnectedGuests() int {
	n := 0
	for _, p := range r.Players {
		if p.Connected() && p.ID != r.HostID {
			n++
		}
	}
	return n
}

// NicknameTaken reports whether a connected player already uses nickname,
// compared case-insensitively.
func (r *Room) NicknameTaken(nickname string) bool {
	for _, p := range r.Players {
		if p.Connected() && strings.EqualFold(p.Nickname, nickname) {
			return true
		}
	}
	return false
}
