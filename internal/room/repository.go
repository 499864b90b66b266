// internal/room/repository.go
package room

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omok/internal/models"
)

// EnterResult is the outcome of a compare-and-increment seat claim.
type EnterResult int

const (
	EnterUnknown EnterResult = iota // returned alongside an error
	EnterOK
	EnterFull
	EnterNotFound
)

func (r EnterResult) String() string {
	switch r {
	case EnterOK:
		return "ok"
	case EnterFull:
		return "full"
	case EnterNotFound:
		return "not_found"
	}
	return "unknown"
}

// LeaveAtomicResult is the outcome of removing a player row.
type LeaveAtomicResult int

const (
	Left LeaveAtomicResult = iota
	NotAMember
)

// LeaveOutcome is the authoritative result of a leave; callers branch on it to
// decide what to broadcast.
type LeaveOutcome int

const (
	LeaveLeft LeaveOutcome = iota
	LeaveHostTransferred
	LeaveRoomDeleted
)

func (o LeaveOutcome) String() string {
	switch o {
	case LeaveLeft:
		return "left"
	case LeaveHostTransferred:
		return "host_transferred"
	case LeaveRoomDeleted:
		return "room_deleted"
	}
	return "unknown"
}

// LeaveResult describes a committed leave.
type LeaveResult struct {
	Outcome LeaveOutcome
	RoomID  uuid.UUID
	// NewHostUserID is set when Outcome is LeaveHostTransferred.
	NewHostUserID uuid.UUID
	// Changed is false when the user was not a member and nothing was written.
	Changed bool
}

// NewRoom carries the fields needed to insert a room row.
type NewRoom struct {
	ID           uuid.UUID // generated by the repository when nil
	HostUserID   uuid.UUID
	Name         string
	IsPublic     bool
	PlayType     int
	Capacity     int
	PasswordHash string
}

// Repository is the transactional room/player store. Every method is a single
// atomic unit: either all of its writes commit or none do.
type Repository interface {
	// ListPublicRooms returns public rooms, newest first.
	ListPublicRooms(ctx context.Context) ([]models.Room, error)
	// FindRoom returns ErrRoomNotFound if the room does not exist.
	FindRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	// CreateRoom inserts a room with no players.
	CreateRoom(ctx context.Context, nr NewRoom) (*models.Room, error)
	// CreateRoomAndEnter inserts a room and its host's player row (SeatFirst)
	// in one transaction.
	CreateRoomAndEnter(ctx context.Context, nr NewRoom) (*models.Room, error)
	// EnterAtomic increments the player count only while it is below capacity,
	// then inserts the player row. No affected row means full or missing.
	EnterAtomic(ctx context.Context, roomID, userID uuid.UUID, seat models.Seat) (EnterResult, error)
	// LeaveAtomic deletes the player row and, if one was deleted, decrements
	// the count (never below zero).
	LeaveAtomic(ctx context.Context, roomID, userID uuid.UUID) (LeaveAtomicResult, error)
	// CurrentHost returns ErrRoomNotFound if the room does not exist.
	CurrentHost(ctx context.Context, roomID uuid.UUID) (uuid.UUID, error)
	// EarliestRemainingPlayer returns the first-joined member, ok=false if none.
	EarliestRemainingPlayer(ctx context.Context, roomID uuid.UUID) (userID uuid.UUID, ok bool, err error)
	TransferHost(ctx context.Context, roomID, newHostUserID uuid.UUID) error
	// DeleteRoom removes the player rows and then the room.
	DeleteRoom(ctx context.Context, roomID uuid.UUID) error
	// LeaveAndSettle removes userID and settles the room in the same
	// transaction: an emptied room is deleted, and a room whose host left
	// passes hosting to the earliest remaining player. A missing room or a
	// non-member yields LeaveLeft with Changed=false and no write.
	LeaveAndSettle(ctx context.Context, roomID, userID uuid.UUID) (LeaveResult, error)
	// ListPlayers returns members ordered by join time.
	ListPlayers(ctx context.Context, roomID uuid.UUID) ([]models.PlayerInfo, error)
}
