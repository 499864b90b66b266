package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omok/internal/hub"
	"github.com/jason-s-yu/omok/internal/models"
	"github.com/jason-s-yu/omok/internal/room"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "h:" + p, nil }
func (plainHasher) Verify(p, h string) (bool, error) {
	return h != "" && "h:"+p == h, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// brokenListRepo fails room list reads the way a lost database would.
type brokenListRepo struct {
	*room.MemoryRepository
}

func (brokenListRepo) ListPublicRooms(ctx context.Context) ([]models.Room, error) {
	return nil, room.WrapStorage("list public rooms", fmt.Errorf("connection refused"))
}

type fixture struct {
	t    *testing.T
	ctx  context.Context
	repo room.Repository
	reg  *hub.Registry
	rt   *Router
}

func newFixtureWithRepo(t *testing.T, repo room.Repository) *fixture {
	logger := quietLogger()
	coord := room.NewCoordinator(repo, room.NewKeyedMutex(), plainHasher{}, logger)
	reg := hub.NewRegistry()
	return &fixture{
		t:    t,
		ctx:  context.Background(),
		repo: repo,
		reg:  reg,
		rt:   NewRouter(coord, hub.NewBroadcaster(reg, logger), logger),
	}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithRepo(t, room.NewMemoryRepository())
}

func (f *fixture) lobby(userID uuid.UUID) *hub.Conn {
	c := hub.NewConn(userID, "test", 64)
	f.rt.OpenLobby(f.ctx, c)
	initial := events(f.t, c)
	require.Len(f.t, initial, 1)
	require.Equal(f.t, "room_list", initial[0]["type"])
	return c
}

func (f *fixture) roomConn(userID, roomID uuid.UUID) *hub.Conn {
	c := hub.NewConn(userID, "test", 64)
	f.rt.OpenRoom(f.ctx, c, roomID)
	initial := events(f.t, c)
	require.Len(f.t, initial, 1)
	require.Equal(f.t, "room_players", initial[0]["type"])
	return c
}

func (f *fixture) sendLobby(c *hub.Conn, format string, args ...any) {
	f.rt.HandleLobby(f.ctx, c, []byte(fmt.Sprintf(format, args...)))
}

func events(t *testing.T, c *hub.Conn) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case data := <-c.OutChan:
			var m map[string]any
			require.NoError(t, json.Unmarshal(data, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func types(evs []map[string]any) []string {
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, e["type"].(string))
	}
	return out
}

func TestLobbyEndToEndRoomLifecycle(t *testing.T) {
	f := newFixture(t)
	alice, bob := uuid.New(), uuid.New()
	observer := f.lobby(uuid.New())
	aliceLobby := f.lobby(alice)
	bobLobby := f.lobby(bob)

	// alice creates a public two-seat room and is seated as host
	f.sendLobby(aliceLobby, `{"type":"create_room","roomName":"five in a row","isPublic":1,"totalUserCnt":2}`)
	aliceEvents := events(t, aliceLobby)
	require.Equal(t, []string{"room_created", "room_list", "create_room_ok"}, types(aliceEvents))
	roomID := uuid.MustParse(aliceEvents[2]["roomId"].(string))

	assert.Equal(t, []string{"room_created", "room_list"}, types(events(t, observer)))
	created, err := f.repo.FindRoom(f.ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, alice, created.HostUserID)
	assert.Equal(t, 1, created.CurrentCount)

	aliceRoom := f.roomConn(alice, roomID)
	events(t, bobLobby)

	// bob joins, taking the second seat and filling the room
	f.sendLobby(bobLobby, `{"type":"enter_room","roomId":"%s"}`, roomID)
	assert.Equal(t, []string{"room_state", "enter_ok"}, types(events(t, bobLobby)))

	obs := events(t, observer)
	require.Equal(t, []string{"room_state"}, types(obs))
	state := obs[0]["room"].(map[string]any)
	assert.EqualValues(t, 2, state["currentUserCnt"])

	players := events(t, aliceRoom)
	require.Equal(t, []string{"room_players"}, types(players))
	list := players[0]["players"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, bob.String(), list[1].(map[string]any)["userId"])
	assert.EqualValues(t, models.SeatSecond, list[1].(map[string]any)["seat"])

	full, err := f.repo.FindRoom(f.ctx, roomID)
	require.NoError(t, err)
	assert.True(t, full.IsFull())

	bobRoom := f.roomConn(bob, roomID)

	// host leaves: bob inherits the room
	f.sendLobby(aliceLobby, `{"type":"leave_room","roomId":"%s"}`, roomID)
	aliceEvents = events(t, aliceLobby)
	assert.Equal(t, "leave_ok", aliceEvents[len(aliceEvents)-1]["type"])

	obs = events(t, observer)
	require.Equal(t, []string{"room_state", "host_changed"}, types(obs))
	assert.Equal(t, bob.String(), obs[1]["newHostUserId"])
	assert.EqualValues(t, 1, obs[0]["room"].(map[string]any)["currentUserCnt"])
	assert.Equal(t, []string{"room_players"}, types(events(t, bobRoom)))

	// last player leaves: the room is gone
	events(t, bobLobby)
	f.sendLobby(bobLobby, `{"type":"leave_room","roomId":"%s"}`, roomID)
	assert.Equal(t, []string{"room_deleted", "room_list", "leave_ok"}, types(events(t, bobLobby)))
	assert.Equal(t, []string{"room_deleted", "room_list"}, types(events(t, observer)))
	assert.Equal(t, []string{"room_deleted"}, types(events(t, bobRoom)))

	_, err = f.repo.FindRoom(f.ctx, roomID)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	players2, err := f.repo.ListPlayers(f.ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, players2)
}

func TestErrorsGoOnlyToSender(t *testing.T) {
	f := newFixture(t)
	sender := f.lobby(uuid.New())
	bystander := f.lobby(uuid.New())

	cases := map[string]string{
		"unknown type":    `{"type":"start_game"}`,
		"missing type":    `{"roomId":"x"}`,
		"not json":        `{{{`,
		"missing room id": `{"type":"enter_room"}`,
		"bad room id":     `{"type":"leave_room","roomId":"nope"}`,
		"empty name":      `{"type":"create_room","roomName":"  "}`,
		"bad capacity":    `{"type":"create_room","roomName":"r","totalUserCnt":"two"}`,
		"private no pwd":  `{"type":"create_room","roomName":"r","isPublic":0}`,
		"unknown room":    fmt.Sprintf(`{"type":"enter_room","roomId":"%s"}`, uuid.New()),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			f.rt.HandleLobby(f.ctx, sender, []byte(raw))
			got := events(t, sender)
			require.Equal(t, []string{"error"}, types(got))
			assert.NotEmpty(t, got[0]["message"])
			assert.Empty(t, events(t, bystander))
		})
	}

	rooms, err := f.repo.ListPublicRooms(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestUnknownTypeMessageNamesTheType(t *testing.T) {
	f := newFixture(t)
	c := f.lobby(uuid.New())
	f.sendLobby(c, `{"type":"resign"}`)
	got := events(t, c)
	require.Len(t, got, 1)
	assert.Contains(t, got[0]["message"], "resign")
}

func TestPrivateRoomWrongPasswordLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	host := f.lobby(uuid.New())
	guest := f.lobby(uuid.New())

	f.sendLobby(host, `{"type":"create_room","roomName":"secret","isPublic":"0","roomPwd":"sesame"}`)
	hostEvents := events(t, host)
	ack := hostEvents[len(hostEvents)-1]
	require.Equal(t, "create_room_ok", ack["type"])
	roomID := uuid.MustParse(ack["roomId"].(string))
	events(t, guest)

	for _, pwd := range []string{`"roomPwd":"open"`, `"roomPwd":"null"`, `"roomPwd":null`} {
		f.sendLobby(guest, `{"type":"enter_room","roomId":"%s",%s}`, roomID, pwd)
		got := events(t, guest)
		require.Equal(t, []string{"error"}, types(got), pwd)
		assert.Equal(t, "wrong room password", got[0]["message"])
	}
	assert.Empty(t, events(t, host))

	r, err := f.repo.FindRoom(f.ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, 1, r.CurrentCount)

	f.sendLobby(guest, `{"type":"enter_room","roomId":"%s","roomPwd":"sesame"}`, roomID)
	assert.Equal(t, []string{"room_state", "enter_ok"}, types(events(t, guest)))
}

func TestFullRoomRejectsEnter(t *testing.T) {
	f := newFixture(t)
	host := f.lobby(uuid.New())
	guest := f.lobby(uuid.New())

	f.sendLobby(host, `{"type":"create_room","roomName":"solo","totalUserCnt":1}`)
	hostEvents := events(t, host)
	roomID := hostEvents[len(hostEvents)-1]["roomId"].(string)
	events(t, guest)

	f.sendLobby(guest, `{"type":"enter_room","roomId":"%s"}`, roomID)
	got := events(t, guest)
	require.Equal(t, []string{"error"}, types(got))
	assert.Equal(t, "room is full", got[0]["message"])
}

func TestLeaveNonMemberStillAcks(t *testing.T) {
	f := newFixture(t)
	host := f.lobby(uuid.New())
	stranger := f.lobby(uuid.New())

	f.sendLobby(host, `{"type":"create_room","roomName":"r"}`)
	hostEvents := events(t, host)
	roomID := hostEvents[len(hostEvents)-1]["roomId"].(string)
	events(t, stranger)

	f.sendLobby(stranger, `{"type":"leave_room","roomId":"%s"}`, roomID)
	assert.Equal(t, []string{"leave_ok"}, types(events(t, stranger)))
	assert.Empty(t, events(t, host), "no broadcast for a no-op leave")
}

func TestRefreshAndRefreshPlayers(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	c := f.lobby(user)

	f.sendLobby(c, `{"type":"create_room","roomName":"r1"}`)
	createEvents := events(t, c)
	roomID := uuid.MustParse(createEvents[len(createEvents)-1]["roomId"].(string))

	f.sendLobby(c, `{"type":"refresh"}`)
	got := events(t, c)
	require.Equal(t, []string{"room_list"}, types(got))
	assert.Len(t, got[0]["rooms"], 1)

	rc := f.roomConn(uuid.New(), roomID)
	f.rt.HandleRoom(f.ctx, rc, []byte(fmt.Sprintf(`{"type":"refresh_players","roomId":"%s"}`, roomID)))
	got = events(t, rc)
	require.Equal(t, []string{"room_players"}, types(got))
	assert.Equal(t, roomID.String(), got[0]["roomId"])
	assert.Len(t, got[0]["players"], 1)

	f.rt.HandleRoom(f.ctx, rc, []byte(`{"type":"refresh"}`))
	assert.Equal(t, []string{"error"}, types(events(t, rc)))
}

func TestStorageFailureIsGeneric(t *testing.T) {
	f := newFixtureWithRepo(t, brokenListRepo{room.NewMemoryRepository()})
	c := hub.NewConn(uuid.New(), "test", 8)
	f.rt.OpenLobby(f.ctx, c)

	got := events(t, c)
	require.Equal(t, []string{"error"}, types(got))
	msg := got[0]["message"].(string)
	assert.Equal(t, "request failed, please try again", msg)
	assert.False(t, strings.Contains(msg, "connection refused"))
}

func TestDisconnectUnsubscribes(t *testing.T) {
	f := newFixture(t)
	c := f.lobby(uuid.New())
	roomID := uuid.New()
	f.rt.OpenRoom(f.ctx, c, roomID)

	f.rt.Disconnect(c)
	f.rt.Disconnect(c)
	assert.Empty(t, f.reg.LobbyConns())
	assert.Empty(t, f.reg.RoomConns(roomID))
	assert.True(t, c.Closed())
}
