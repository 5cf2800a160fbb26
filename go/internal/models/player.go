package models

import "time"

// PlayerRole defines whether a player controls the room.
type PlayerRole string

const (
	PlayerRoleHost  PlayerRole = "HOST"
	PlayerRoleGuest PlayerRole = "GUEST"
)

// PlayerStatus tracks connectivity. Leaving a room is a soft leave.
type PlayerStatus string

const (
	PlayerStatusConnected    PlayerStatus = "CONNECTED"
	PlayerStatusDisconnected PlayerStatus = "DISCONNECTED"
)

// Player represents a member of exactly one room.
type Player struct {
	ID       string       `json:"id"`
	Nickname string       `json:"nickname"`
	Role     PlayerRole   `json:"role"`
	Status   PlayerStatus `json:"status"`
	JoinedAt time.Time    `json:"joined_at"`
	LastSeen time.Time    `json:"last_seen"`
}

func (p Player) Connected() bool {
	return p.Status == PlayerStatusConnected
}
