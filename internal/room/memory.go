// internal/room/memory.go
package room

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omok/internal/models"
)

// MemoryRepository keeps rooms and players in process memory. Each method holds
// the repository mutex for its whole body, which gives it the same
// all-or-nothing behavior as a store transaction. Writes are refused once ctx
// is done, as a store would refuse them after its deadline. Used for tests and
// for single-node deployments without Postgres.
type MemoryRepository struct {
	mu        sync.Mutex
	rooms     map[uuid.UUID]*models.Room
	players   map[uuid.UUID][]models.RoomPlayer // roomID -> players in arrival order
	nicknames map[uuid.UUID]string
	now       func() time.Time
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rooms:     make(map[uuid.UUID]*models.Room),
		players:   make(map[uuid.UUID][]models.RoomPlayer),
		nicknames: make(map[uuid.UUID]string),
		now:       time.Now,
	}
}

// SetNickname records the display name ListPlayers reports for userID.
func (m *MemoryRepository) SetNickname(userID uuid.UUID, nickname string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nicknames[userID] = nickname
}

func (m *MemoryRepository) ListPublicRooms(ctx context.Context) ([]models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := make([]models.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		if r.IsPublic {
			rooms = append(rooms, *r)
		}
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (m *MemoryRepository) FindRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) CreateRoom(ctx context.Context, nr NewRoom) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, WrapStorage("create room", err)
	}

	r := m.insertRoomLocked(nr, 0)
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) CreateRoomAndEnter(ctx context.Context, nr NewRoom) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, WrapStorage("create room", err)
	}

	r := m.insertRoomLocked(nr, 1)
	m.players[r.ID] = []models.RoomPlayer{{
		ID:       uuid.New(),
		RoomID:   r.ID,
		UserID:   nr.HostUserID,
		JoinedAt: r.CreatedAt,
		Seat:     models.SeatFirst,
	}}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) insertRoomLocked(nr NewRoom, count int) *models.Room {
	id := nr.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	r := &models.Room{
		ID:           id,
		HostUserID:   nr.HostUserID,
		Name:         nr.Name,
		IsPublic:     nr.IsPublic,
		PlayType:     nr.PlayType,
		Capacity:     nr.Capacity,
		CurrentCount: count,
		PasswordHash: nr.PasswordHash,
		CreatedAt:    m.now(),
	}
	m.rooms[r.ID] = r
	return r
}

func (m *MemoryRepository) EnterAtomic(ctx context.Context, roomID, userID uuid.UUID, seat models.Seat) (EnterResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return EnterUnknown, WrapStorage("enter room", err)
	}

	r, ok := m.rooms[roomID]
	if !ok {
		return EnterNotFound, nil
	}
	if r.CurrentCount >= r.Capacity {
		return EnterFull, nil
	}
	for _, p := range m.players[roomID] {
		if p.UserID == userID || p.Seat == seat {
			// mirrors the unique constraints on room_players; the count is untouched
			return EnterUnknown, WrapStorage("enter room", fmt.Errorf("duplicate player or seat %d", seat))
		}
	}
	r.CurrentCount++
	m.players[roomID] = append(m.players[roomID], models.RoomPlayer{
		ID:       uuid.New(),
		RoomID:   roomID,
		UserID:   userID,
		JoinedAt: m.now(),
		Seat:     seat,
	})
	return EnterOK, nil
}

func (m *MemoryRepository) LeaveAtomic(ctx context.Context, roomID, userID uuid.UUID) (LeaveAtomicResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return NotAMember, WrapStorage("leave room", err)
	}

	if !m.removePlayerLocked(roomID, userID) {
		return NotAMember, nil
	}
	return Left, nil
}

// removePlayerLocked drops userID's row and decrements the count, never below
// zero. It reports whether a row was removed.
func (m *MemoryRepository) removePlayerLocked(roomID, userID uuid.UUID) bool {
	players := m.players[roomID]
	idx := -1
	for i, p := range players {
		if p.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	m.players[roomID] = append(players[:idx:idx], players[idx+1:]...)
	if r, ok := m.rooms[roomID]; ok && r.CurrentCount > 0 {
		r.CurrentCount--
	}
	return true
}

func (m *MemoryRepository) CurrentHost(ctx context.Context, roomID uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return uuid.Nil, ErrRoomNotFound
	}
	return r.HostUserID, nil
}

func (m *MemoryRepository) EarliestRemainingPlayer(ctx context.Context, roomID uuid.UUID) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := m.earliestLocked(roomID)
	return next, ok, nil
}

func (m *MemoryRepository) earliestLocked(roomID uuid.UUID) (uuid.UUID, bool) {
	players := m.players[roomID]
	if len(players) == 0 {
		return uuid.Nil, false
	}
	// stable: equal join times keep arrival order
	earliest := players[0]
	for _, p := range players[1:] {
		if p.JoinedAt.Before(earliest.JoinedAt) {
			earliest = p
		}
	}
	return earliest.UserID, true
}

func (m *MemoryRepository) TransferHost(ctx context.Context, roomID, newHostUserID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return WrapStorage("transfer host", err)
	}

	if r, ok := m.rooms[roomID]; ok {
		r.HostUserID = newHostUserID
	}
	return nil
}

func (m *MemoryRepository) DeleteRoom(ctx context.Context, roomID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return WrapStorage("delete room", err)
	}

	m.deleteRoomLocked(roomID)
	return nil
}

func (m *MemoryRepository) deleteRoomLocked(roomID uuid.UUID) {
	delete(m.players, roomID)
	delete(m.rooms, roomID)
}

func (m *MemoryRepository) LeaveAndSettle(ctx context.Context, roomID, userID uuid.UUID) (LeaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return LeaveResult{}, WrapStorage("leave room", err)
	}

	result := LeaveResult{Outcome: LeaveLeft, RoomID: roomID}
	r, ok := m.rooms[roomID]
	if !ok {
		return result, nil
	}
	wasHost := r.HostUserID == userID
	if !m.removePlayerLocked(roomID, userID) {
		return result, nil
	}
	result.Changed = true

	if r.CurrentCount <= 0 {
		m.deleteRoomLocked(roomID)
		result.Outcome = LeaveRoomDeleted
		return result, nil
	}
	if !wasHost {
		return result, nil
	}
	next, ok := m.earliestLocked(roomID)
	if !ok {
		return result, nil
	}
	r.HostUserID = next
	result.Outcome = LeaveHostTransferred
	result.NewHostUserID = next
	return result, nil
}

func (m *MemoryRepository) ListPlayers(ctx context.Context, roomID uuid.UUID) ([]models.PlayerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	players := make([]models.RoomPlayer, len(m.players[roomID]))
	copy(players, m.players[roomID])
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})

	out := make([]models.PlayerInfo, 0, len(players))
	for _, p := range players {
		out = append(out, models.PlayerInfo{
			UserID:   p.UserID,
			Nickname: m.nicknameLocked(p.UserID),
			Seat:     p.Seat,
		})
	}
	return out, nil
}

func (m *MemoryRepository) nicknameLocked(userID uuid.UUID) string {
	if n, ok := m.nicknames[userID]; ok {
		return n
	}
	return fmt.Sprintf("User_%s", userID.String()[:4])
}

var _ Repository = (*MemoryRepository)(nil)
