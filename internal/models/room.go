// internal/models/room.go
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Seat is a per-room slot a player occupies. For omok, SeatFirst plays black
// and SeatSecond plays white.
type Seat int

const (
	SeatFirst  Seat = 1
	SeatSecond Seat = 2
)

// Room represents a row in the rooms table.
type Room struct {
	ID           uuid.UUID
	HostUserID   uuid.UUID
	Name         string
	IsPublic     bool
	PlayType     int
	Capacity     int
	CurrentCount int
	PasswordHash string // empty for public rooms
	CreatedAt    time.Time
}

// roomWire is the lobby wire form of a Room.
type roomWire struct {
	ID             string `json:"id"`
	HostUserID     string `json:"hostUserId"`
	RoomName       string `json:"roomName"`
	IsPublic       int    `json:"isPublic"`
	PlayType       int    `json:"playType"`
	TotalUserCnt   int    `json:"totalUserCnt"`
	CurrentUserCnt int    `json:"currentUserCnt"`
}

// MarshalJSON renders the room the way lobby clients expect it. The password
// hash and creation time never leave the server.
func (r Room) MarshalJSON() ([]byte, error) {
	w := roomWire{
		ID:             r.ID.String(),
		HostUserID:     r.HostUserID.String(),
		RoomName:       r.Name,
		PlayType:       r.PlayType,
		TotalUserCnt:   r.Capacity,
		CurrentUserCnt: r.CurrentCount,
	}
	if r.IsPublic {
		w.IsPublic = 1
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON, used by clients and tests.
func (r *Room) UnmarshalJSON(data []byte) error {
	var w roomWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id, err := uuid.Parse(w.ID)
	if err != nil {
		return err
	}
	host, err := uuid.Parse(w.HostUserID)
	if err != nil {
		return err
	}
	*r = Room{
		ID:           id,
		HostUserID:   host,
		Name:         w.RoomName,
		IsPublic:     w.IsPublic == 1,
		PlayType:     w.PlayType,
		Capacity:     w.TotalUserCnt,
		CurrentCount: w.CurrentUserCnt,
	}
	return nil
}

// IsFull reports whether no further player can be admitted.
func (r *Room) IsFull() bool {
	return r.CurrentCount >= r.Capacity
}

// RoomPlayer represents a row in the room_players table.
type RoomPlayer struct {
	ID       uuid.UUID `json:"id"`
	RoomID   uuid.UUID `json:"roomId"`
	UserID   uuid.UUID `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
	Seat     Seat      `json:"seat"`
}

// PlayerInfo is a room member as shown on the room channel.
type PlayerInfo struct {
	UserID   uuid.UUID `json:"userId"`
	Nickname string    `json:"nickname"`
	Seat     Seat      `json:"seat"`
}
