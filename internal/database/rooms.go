// internal/database/rooms.go
package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/omok/internal/models"
	"github.com/jason-s-yu/omok/internal/room"
)

// RoomRepository implements room.Repository on Postgres. Each method runs as
// one transaction; reads go straight to the pool.
type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

const roomColumns = `
	id, host_user_id, room_name, is_public, play_type,
	total_user_cnt, current_user_cnt, COALESCE(room_pwd_hash, ''), created_at
`

func scanRoom(row pgx.Row) (*models.Room, error) {
	var r models.Room
	var isPublic int16
	err := row.Scan(
		&r.ID,
		&r.HostUserID,
		&r.Name,
		&isPublic,
		&r.PlayType,
		&r.Capacity,
		&r.CurrentCount,
		&r.PasswordHash,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.IsPublic = isPublic == 1
	return &r, nil
}

func boolToSmallint(b bool) int16 {
	if b {
		return 1
	}
	return 0
}

// nullIfEmpty keeps public rooms' password column NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ListPublicRooms returns public rooms, newest first.
func (rr *RoomRepository) ListPublicRooms(ctx context.Context) ([]models.Room, error) {
	q := `SELECT ` + roomColumns + `
		FROM rooms
		WHERE is_public = 1
		ORDER BY created_at DESC
	`
	rows, err := rr.pool.Query(ctx, q)
	if err != nil {
		return nil, room.WrapStorage("list public rooms", err)
	}
	defer rows.Close()

	rooms := []models.Room{}
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, room.WrapStorage("scan room", err)
		}
		rooms = append(rooms, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, room.WrapStorage("list public rooms", err)
	}
	return rooms, nil
}

// FindRoom fetches a room by ID.
func (rr *RoomRepository) FindRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`
	r, err := scanRoom(rr.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, room.ErrRoomNotFound
	}
	if err != nil {
		return nil, room.WrapStorage("find room", err)
	}
	return r, nil
}

const insertRoomSQL = `
	INSERT INTO rooms (
		id, host_user_id, room_name, is_public, play_type,
		total_user_cnt, current_user_cnt, room_pwd_hash
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING created_at
`

const insertPlayerSQL = `
	INSERT INTO room_players (id, room_id, user_id, seat)
	VALUES ($1, $2, $3, $4)
`

func (rr *RoomRepository) insertRoom(ctx context.Context, tx pgx.Tx, nr room.NewRoom, count int) (*models.Room, error) {
	r := &models.Room{
		ID:           nr.ID,
		HostUserID:   nr.HostUserID,
		Name:         nr.Name,
		IsPublic:     nr.IsPublic,
		PlayType:     nr.PlayType,
		Capacity:     nr.Capacity,
		CurrentCount: count,
		PasswordHash: nr.PasswordHash,
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	err := tx.QueryRow(ctx, insertRoomSQL,
		r.ID,
		r.HostUserID,
		r.Name,
		boolToSmallint(r.IsPublic),
		r.PlayType,
		r.Capacity,
		count,
		nullIfEmpty(r.PasswordHash),
	).Scan(&r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CreateRoom inserts an empty room.
func (rr *RoomRepository) CreateRoom(ctx context.Context, nr room.NewRoom) (*models.Room, error) {
	var created *models.Room
	err := pgx.BeginTxFunc(ctx, rr.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		r, err := rr.insertRoom(ctx, tx, nr, 0)
		created = r
		return err
	})
	if err != nil {
		return nil, room.WrapStorage("create room", err)
	}
	return created, nil
}

// CreateRoomAndEnter inserts the room with its host already seated first.
func (rr *RoomRepository) CreateRoomAndEnter(ctx context.Context, nr room.NewRoom) (*models.Room, error) {
	var created *models.Room
	err := pgx.BeginTxFunc(ctx, rr.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		r, err := rr.insertRoom(ctx, tx, nr, 1)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insertPlayerSQL, uuid.New(), r.ID, r.HostUserID, int(models.SeatFirst)); err != nil {
			return err
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, room.WrapStorage("create and enter room", err)
	}
	return created, nil
}

// EnterAtomic claims a seat with a compare-and-increment on the count.
func (rr *RoomRepository) EnterAtomic(ctx context.Context, roomID, userID uuid.UUID, seat models.Seat) (room.EnterResult, error) {
	updCnt := `
		UPDATE rooms
		SET current_user_cnt = current_user_cnt + 1
		WHERE id = $1
		  AND current_user_cnt < total_user_cnt
	`
	result := room.EnterUnknown
	err := pgx.BeginTxFunc(ctx, rr.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updCnt, roomID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// nothing was written; only classify full vs missing
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, roomID).Scan(&exists); err != nil {
				return err
			}
			if exists {
				result = room.EnterFull
			} else {
				result = room.EnterNotFound
			}
			return nil
		}
		if _, err := tx.Exec(ctx, insertPlayerSQL, uuid.New(), roomID, userID, int(seat)); err != nil {
			return err
		}
		result = room.EnterOK
		return nil
	})
	if err != nil {
		return room.EnterUnknown, room.WrapStorage("enter room", err)
	}
	return result, nil
}

const deletePlayerSQL = `DELETE FROM room_players WHERE room_id = $1 AND user_id = $2`

// earliestPlayerSQL orders equal join times by insertion order (seq), never by
// a domain rule.
const earliestPlayerSQL = `
	SELECT user_id
	FROM room_players
	WHERE room_id = $1
	ORDER BY joined_at ASC, seq ASC
	LIMIT 1
`

// LeaveAtomic deletes the player row and decrements the count if a row went away.
func (rr *RoomRepository) LeaveAtomic(ctx context.Context, roomID, userID uuid.UUID) (room.LeaveAtomicResult, error) {
	decCnt := `
		UPDATE rooms
		SET current_user_cnt = current_user_cnt - 1
		WHERE id = $1
		  AND current_user_cnt > 0
	`
	result := room.NotAMember
	err := pgx.BeginTxFunc(ctx, rr.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, deletePlayerSQL, roomID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, decCnt, roomID); err != nil {
			return err
		}
		result = room.Left
		return nil
	})
	if err != nil {
		return room.NotAMember, room.WrapStorage("leave room", err)
	}
	return result, nil
}

func (rr *RoomRepository) CurrentHost(ctx context.Context, roomID uuid.UUID) (uuid.UUID, error) {
	var host uuid.UUID
	err := rr.pool.QueryRow(ctx, `SELECT host_user_id FROM rooms WHERE id = $1`, roomID).Scan(&host)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, room.ErrRoomNotFound
	}
	if err != nil {
		return uuid.Nil, room.WrapStorage("current host", err)
	}
	return host, nil
}

// EarliestRemainingPlayer picks the first-joined member.
func (rr *RoomRepository) EarliestRemainingPlayer(ctx context.Context, roomID uuid.UUID) (uuid.UUID, bool, error) {
	userID, ok, err := earliestPlayer(ctx, rr.pool, roomID)
	if err != nil {
		return uuid.Nil, false, room.WrapStorage("earliest remaining player", err)
	}
	return userID, ok, nil
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func earliestPlayer(ctx context.Context, q querier, roomID uuid.UUID) (uuid.UUID, bool, error) {
	var userID uuid.UUID
	err := q.QueryRow(ctx, earliestPlayerSQL, roomID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return userID, true, nil
}

func (rr *RoomRepository) TransferHost(ctx context.Context, roomID, newHostUserID uuid.UUID) error {
	err := pgx.BeginTxFunc(ctx, rr.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return setHost(ctx, tx, roomID, newHostUserID)
	})
	return room.WrapStorage("transfer host", err)
}

func setHost(ctx context.Context, tx pgx.Tx, roomID, hostUserID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE rooms SET host_user_id = $1 WHERE id = $2`, hostUserID, roomID)
	return err
}

// DeleteRoom removes the room's players first, then the room.
func (rr *RoomRepository) DeleteRoom(ctx context.Context, roomID uuid.UUID) error {
	err := pgx.BeginTxFunc(ctx, rr.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return deleteRoom(ctx, tx, roomID)
	})
	return room.WrapStorage("delete room", err)
}

func deleteRoom(ctx context.Context, tx pgx.Tx, roomID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `DELETE FROM room_players WHERE room_id = $1`, roomID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	return err
}

// LeaveAndSettle removes the player and settles the room in one transaction.
// The room row is locked first so concurrent leaves on the same room settle
// one after the other, and readers never see the count at zero or a host who
// has already left.
func (rr *RoomRepository) LeaveAndSettle(ctx context.Context, roomID, userID uuid.UUID) (room.LeaveResult, error) {
	decCnt := `
		UPDATE rooms
		SET current_user_cnt = GREATEST(current_user_cnt - 1, 0)
		WHERE id = $1
		RETURNING current_user_cnt
	`
	var result room.LeaveResult
	err := pgx.BeginTxFunc(ctx, rr.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		result = room.LeaveResult{Outcome: room.LeaveLeft, RoomID: roomID}

		var host uuid.UUID
		err := tx.QueryRow(ctx, `SELECT host_user_id FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&host)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, deletePlayerSQL, roomID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		var remaining int
		if err := tx.QueryRow(ctx, decCnt, roomID).Scan(&remaining); err != nil {
			return err
		}
		if remaining <= 0 {
			if err := deleteRoom(ctx, tx, roomID); err != nil {
				return err
			}
			result.Outcome = room.LeaveRoomDeleted
			result.Changed = true
			return nil
		}
		if host != userID {
			result.Changed = true
			return nil
		}

		next, ok, err := earliestPlayer(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if ok {
			if err := setHost(ctx, tx, roomID, next); err != nil {
				return err
			}
			result.Outcome = room.LeaveHostTransferred
			result.NewHostUserID = next
		}
		result.Changed = true
		return nil
	})
	if err != nil {
		return room.LeaveResult{}, room.WrapStorage("leave and settle", err)
	}
	return result, nil
}

// ListPlayers returns members with their nicknames, earliest first.
func (rr *RoomRepository) ListPlayers(ctx context.Context, roomID uuid.UUID) ([]models.PlayerInfo, error) {
	q := `
		SELECT rp.user_id, COALESCE(u.nickname, ''), rp.seat
		FROM room_players rp
		LEFT JOIN users u ON u.id = rp.user_id
		WHERE rp.room_id = $1
		ORDER BY rp.joined_at ASC, rp.seq ASC
	`
	rows, err := rr.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, room.WrapStorage("list players", err)
	}
	defer rows.Close()

	players := []models.PlayerInfo{}
	for rows.Next() {
		var p models.PlayerInfo
		var seat int
		if err := rows.Scan(&p.UserID, &p.Nickname, &seat); err != nil {
			return nil, room.WrapStorage("scan player", err)
		}
		p.Seat = models.Seat(seat)
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, room.WrapStorage("list players", err)
	}
	return players, nil
}

var _ room.Repository = (*RoomRepository)(nil)
