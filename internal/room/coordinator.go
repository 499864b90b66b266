// internal/room/coordinator.go
package room

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omok/internal/models"
	"github.com/sirupsen/logrus"
)

// PasswordHasher hashes room passwords and checks candidates against a hash.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) (bool, error)
}

// JoinResult describes a committed join.
type JoinResult struct {
	Room *models.Room
	Seat models.Seat
}

// CreateParams is a create-room request after envelope parsing.
type CreateParams struct {
	HostUserID uuid.UUID
	Name       string
	IsPublic   bool
	PlayType   int
	Capacity   int
	Password   string
}

// Coordinator applies the room lifecycle rules on top of a Repository. Every
// join and leave for a given room runs under that room's exclusive lock, from
// the membership read through the last write.
//
// Commit hooks passed to Join, Leave and CreateAndEnter run after the
// repository writes committed and before the room lock is released, so hooks
// for one room observe commit order. Hooks must not block on the network.
type Coordinator struct {
	repo        Repository
	locks       Locker
	hasher      PasswordHasher
	logger      *logrus.Logger
	txTimeout   time.Duration
	maxCapacity int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTxTimeout bounds each coordinator operation's store work. Zero leaves the
// store's own timeout as the only bound.
func WithTxTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.txTimeout = d }
}

// WithMaxCapacity caps the capacity a room may be created with. Zero means no cap.
func WithMaxCapacity(n int) Option {
	return func(c *Coordinator) { c.maxCapacity = n }
}

func NewCoordinator(repo Repository, locks Locker, hasher PasswordHasher, logger *logrus.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		repo:   repo,
		locks:  locks,
		hasher: hasher,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Repository exposes the underlying store for read-only queries (room lists,
// player lists) that need no lock.
func (c *Coordinator) Repository() Repository {
	return c.repo
}

func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.txTimeout > 0 {
		return context.WithTimeout(ctx, c.txTimeout)
	}
	return context.WithCancel(ctx)
}

// lock acquires the room lock. Store work must run under the returned lease
// context, which ends when the lock can no longer be trusted to be held.
func (c *Coordinator) lock(ctx context.Context, roomID uuid.UUID) (context.Context, func(), error) {
	lease, unlock, err := c.locks.Lock(ctx, roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: acquire room lock %s: %v", ErrStorage, roomID, err)
	}
	return lease, unlock, nil
}

func (c *Coordinator) validateCreate(p CreateParams) error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "roomName", Reason: "room name is empty"}
	}
	if p.Capacity < 1 {
		return &ValidationError{Field: "totalUserCnt", Reason: "capacity must be at least 1"}
	}
	if c.maxCapacity > 0 && p.Capacity > c.maxCapacity {
		return &ValidationError{Field: "totalUserCnt", Reason: fmt.Sprintf("capacity must be at most %d", c.maxCapacity)}
	}
	if !p.IsPublic && strings.TrimSpace(p.Password) == "" {
		return &ValidationError{Field: "roomPwd", Reason: "private rooms require a password"}
	}
	return nil
}

// CreateAndEnter creates a room whose creator is already seated as host in
// SeatFirst. A capacity-1 room is full from birth.
func (c *Coordinator) CreateAndEnter(ctx context.Context, p CreateParams, onCommit func(*models.Room)) (*models.Room, error) {
	if err := c.validateCreate(p); err != nil {
		return nil, err
	}

	var hash string
	if !p.IsPublic {
		h, err := c.hasher.Hash(p.Password)
		if err != nil {
			return nil, fmt.Errorf("hash room password: %w", err)
		}
		hash = h
	}

	roomID := uuid.New()
	ctx, unlock, err := c.lock(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rm, err := c.repo.CreateRoomAndEnter(ctx, NewRoom{
		ID:           roomID,
		HostUserID:   p.HostUserID,
		Name:         strings.TrimSpace(p.Name),
		IsPublic:     p.IsPublic,
		PlayType:     p.PlayType,
		Capacity:     p.Capacity,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"room_id":  rm.ID,
		"host_id":  rm.HostUserID,
		"capacity": rm.Capacity,
		"public":   rm.IsPublic,
	}).Info("room created")

	if onCommit != nil {
		onCommit(rm)
	}
	return rm, nil
}

// Join seats userID in the room. It fails with ErrRoomNotFound,
// ErrWrongPassword, ErrAlreadyInRoom or ErrRoomFull; none of them leave a
// write behind. A losing join is not retried.
func (c *Coordinator) Join(ctx context.Context, roomID, userID uuid.UUID, password string, onCommit func(JoinResult)) (JoinResult, error) {
	ctx, unlock, err := c.lock(ctx, roomID)
	if err != nil {
		return JoinResult{}, err
	}
	defer unlock()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rm, err := c.repo.FindRoom(ctx, roomID)
	if err != nil {
		return JoinResult{}, err
	}

	if !rm.IsPublic {
		ok, err := c.hasher.Verify(password, rm.PasswordHash)
		if err != nil {
			c.logger.WithError(err).WithField("room_id", roomID).Warn("stored room password hash is unreadable")
		}
		if err != nil || !ok {
			return JoinResult{}, ErrWrongPassword
		}
	}

	players, err := c.repo.ListPlayers(ctx, roomID)
	if err != nil {
		return JoinResult{}, err
	}
	for _, p := range players {
		if p.UserID == userID {
			return JoinResult{}, ErrAlreadyInRoom
		}
	}
	seat := NextSeat(players)

	res, err := c.repo.EnterAtomic(ctx, roomID, userID, seat)
	if err != nil {
		return JoinResult{}, err
	}
	switch res {
	case EnterFull:
		return JoinResult{}, ErrRoomFull
	case EnterNotFound:
		return JoinResult{}, ErrRoomNotFound
	}

	snapshot, err := c.repo.FindRoom(ctx, roomID)
	if err != nil {
		return JoinResult{}, err
	}

	c.logger.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
		"seat":    seat,
		"count":   snapshot.CurrentCount,
	}).Info("user joined room")

	result := JoinResult{Room: snapshot, Seat: seat}
	if onCommit != nil {
		onCommit(result)
	}
	return result, nil
}

// Leave removes userID from the room. If the room empties it is deleted; if
// the host left, hosting passes to the earliest remaining player. Removal and
// settlement commit together. Leaving a room one is not in (or one that no
// longer exists) is a no-op Left. onCommit only runs when something was
// written.
func (c *Coordinator) Leave(ctx context.Context, roomID, userID uuid.UUID, onCommit func(LeaveResult)) (LeaveResult, error) {
	ctx, unlock, err := c.lock(ctx, roomID)
	if err != nil {
		return LeaveResult{}, err
	}
	defer unlock()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	result, err := c.repo.LeaveAndSettle(ctx, roomID, userID)
	if err != nil {
		return LeaveResult{}, err
	}
	if !result.Changed {
		return result, nil
	}

	c.logger.WithFields(logrus.Fields{
		"room_id":  roomID,
		"user_id":  userID,
		"outcome":  result.Outcome,
		"new_host": result.NewHostUserID,
	}).Info("user left room")

	if onCommit != nil {
		onCommit(result)
	}
	return result, nil
}
