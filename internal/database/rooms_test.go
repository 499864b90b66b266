// internal/database/rooms_test.go
package database

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omok/internal/models"
	"github.com/jason-s-yu/omok/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRoomRepo connects to a migrated test database. These tests need a real
// Postgres (see cmd/migrate) and are skipped without DATABASE_URL.
func setupRoomRepo(t *testing.T) *RoomRepository {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping postgres room repository tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := ConnectDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewRoomRepository(pool)
}

func TestPostgresCreateAndEnter(t *testing.T) {
	repo := setupRoomRepo(t)
	ctx := context.Background()
	host := uuid.New()

	rm, err := repo.CreateRoomAndEnter(ctx, room.NewRoom{HostUserID: host, Name: "pg room", IsPublic: true, PlayType: 1, Capacity: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.DeleteRoom(context.Background(), rm.ID) })

	found, err := repo.FindRoom(ctx, rm.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, found.CurrentCount)
	assert.Equal(t, host, found.HostUserID)

	players, err := repo.ListPlayers(ctx, rm.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, models.SeatFirst, players[0].Seat)

	current, err := repo.CurrentHost(ctx, rm.ID)
	require.NoError(t, err)
	assert.Equal(t, host, current)
}

func TestPostgresEnterAtomicRace(t *testing.T) {
	repo := setupRoomRepo(t)
	ctx := context.Background()

	rm, err := repo.CreateRoom(ctx, room.NewRoom{HostUserID: uuid.New(), Name: "race", IsPublic: true, Capacity: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.DeleteRoom(context.Background(), rm.ID) })

	results := make([]room.EnterResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, seat := range []models.Seat{models.SeatFirst, models.SeatSecond} {
		wg.Add(1)
		go func(i int, seat models.Seat) {
			defer wg.Done()
			results[i], errs[i] = repo.EnterAtomic(ctx, rm.ID, uuid.New(), seat)
		}(i, seat)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.ElementsMatch(t, []room.EnterResult{room.EnterOK, room.EnterFull}, results)

	players, err := repo.ListPlayers(ctx, rm.ID)
	require.NoError(t, err)
	assert.Len(t, players, 1)
}

func TestPostgresLeaveAndDelete(t *testing.T) {
	repo := setupRoomRepo(t)
	ctx := context.Background()
	host, guest := uuid.New(), uuid.New()

	rm, err := repo.CreateRoomAndEnter(ctx, room.NewRoom{HostUserID: host, Name: "leave", IsPublic: true, Capacity: 2})
	require.NoError(t, err)
	res, err := repo.EnterAtomic(ctx, rm.ID, guest, models.SeatSecond)
	require.NoError(t, err)
	require.Equal(t, room.EnterOK, res)

	left, err := repo.LeaveAtomic(ctx, rm.ID, host)
	require.NoError(t, err)
	assert.Equal(t, room.Left, left)

	next, ok, err := repo.EarliestRemainingPlayer(ctx, rm.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, guest, next)

	require.NoError(t, repo.DeleteRoom(ctx, rm.ID))
	_, err = repo.FindRoom(ctx, rm.ID)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)

	res, err = repo.EnterAtomic(ctx, rm.ID, uuid.New(), models.SeatFirst)
	require.NoError(t, err)
	assert.Equal(t, room.EnterNotFound, res)
}

func TestPostgresLeaveAndSettleOutcomes(t *testing.T) {
	repo := setupRoomRepo(t)
	ctx := context.Background()
	host, guest, third := uuid.New(), uuid.New(), uuid.New()

	rm, err := repo.CreateRoomAndEnter(ctx, room.NewRoom{HostUserID: host, Name: "settle", IsPublic: true, Capacity: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.DeleteRoom(context.Background(), rm.ID) })
	for i, u := range []uuid.UUID{guest, third} {
		res, err := repo.EnterAtomic(ctx, rm.ID, u, models.Seat(i+2))
		require.NoError(t, err)
		require.Equal(t, room.EnterOK, res)
	}

	res, err := repo.LeaveAndSettle(ctx, rm.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, res.Changed, "non-member leave writes nothing")

	res, err = repo.LeaveAndSettle(ctx, rm.ID, third)
	require.NoError(t, err)
	assert.Equal(t, room.LeaveLeft, res.Outcome)
	assert.True(t, res.Changed)

	res, err = repo.LeaveAndSettle(ctx, rm.ID, host)
	require.NoError(t, err)
	assert.Equal(t, room.LeaveHostTransferred, res.Outcome)
	assert.Equal(t, guest, res.NewHostUserID)
	found, err := repo.FindRoom(ctx, rm.ID)
	require.NoError(t, err)
	assert.Equal(t, guest, found.HostUserID)
	assert.Equal(t, 1, found.CurrentCount)

	res, err = repo.LeaveAndSettle(ctx, rm.ID, guest)
	require.NoError(t, err)
	assert.Equal(t, room.LeaveRoomDeleted, res.Outcome)
	_, err = repo.FindRoom(ctx, rm.ID)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)

	res, err = repo.LeaveAndSettle(ctx, rm.ID, guest)
	require.NoError(t, err)
	assert.False(t, res.Changed, "leaving a deleted room is a no-op")
}

// failRoomWrites installs a trigger that aborts the given statement on rooms
// rows named name, so a leave fails after the player row was already deleted
// inside the transaction.
func failRoomWrites(t *testing.T, repo *RoomRepository, event, name string) {
	t.Helper()
	ctx := context.Background()
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	fn := "omok_test_fail_" + suffix
	trg := "omok_test_trg_" + suffix

	_, err := repo.pool.Exec(ctx, fmt.Sprintf(`
		CREATE FUNCTION %s() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'injected failure';
		END
		$$ LANGUAGE plpgsql`, fn))
	require.NoError(t, err)
	cond := "OLD.room_name = '" + name + "'"
	_, err = repo.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TRIGGER %s BEFORE %s ON rooms FOR EACH ROW WHEN (%s) EXECUTE FUNCTION %s()`,
		trg, event, cond, fn))
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = repo.pool.Exec(context.Background(), fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON rooms`, trg))
		_, _ = repo.pool.Exec(context.Background(), fmt.Sprintf(`DROP FUNCTION IF EXISTS %s()`, fn))
	})
}

func TestPostgresLeaveAndSettleRollsBackWhenDeleteFails(t *testing.T) {
	repo := setupRoomRepo(t)
	ctx := context.Background()
	host := uuid.New()
	name := "fail-delete-" + uuid.NewString()

	rm, err := repo.CreateRoomAndEnter(ctx, room.NewRoom{HostUserID: host, Name: name, IsPublic: true, Capacity: 2})
	require.NoError(t, err)
	// registered first so it runs after the trigger is dropped
	t.Cleanup(func() { _ = repo.DeleteRoom(context.Background(), rm.ID) })
	failRoomWrites(t, repo, "DELETE", name)

	_, err = repo.LeaveAndSettle(ctx, rm.ID, host)
	require.ErrorIs(t, err, room.ErrStorage)

	// neither an empty room nor a dangling removal is left behind
	found, err := repo.FindRoom(ctx, rm.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, found.CurrentCount)
	assert.Equal(t, host, found.HostUserID)
	players, err := repo.ListPlayers(ctx, rm.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, host, players[0].UserID)
}

func TestPostgresLeaveAndSettleRollsBackWhenTransferFails(t *testing.T) {
	repo := setupRoomRepo(t)
	ctx := context.Background()
	host, guest := uuid.New(), uuid.New()
	name := "fail-transfer-" + uuid.NewString()

	rm, err := repo.CreateRoomAndEnter(ctx, room.NewRoom{HostUserID: host, Name: name, IsPublic: true, Capacity: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.DeleteRoom(context.Background(), rm.ID) })
	res, err := repo.EnterAtomic(ctx, rm.ID, guest, models.SeatSecond)
	require.NoError(t, err)
	require.Equal(t, room.EnterOK, res)
	failRoomWrites(t, repo, "UPDATE OF host_user_id", name)

	_, err = repo.LeaveAndSettle(ctx, rm.ID, host)
	require.ErrorIs(t, err, room.ErrStorage)

	// the host is still a member and the count still matches
	found, err := repo.FindRoom(ctx, rm.ID)
	require.NoError(t, err)
	assert.Equal(t, host, found.HostUserID)
	assert.Equal(t, 2, found.CurrentCount)
	players, err := repo.ListPlayers(ctx, rm.ID)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.UserID)
	}
	assert.ElementsMatch(t, []uuid.UUID{host, guest}, ids)
}
