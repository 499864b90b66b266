package hub

import (
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func drain(t *testing.T, c *Conn) []map[string]any {
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

func TestConnSendAfterClose(t *testing.T) {
	c := NewConn(uuid.New(), "test", 1)
	require.NoError(t, c.Send([]byte("a")))
	assert.ErrorIs(t, c.Send([]byte("b")), ErrSendFull)

	c.Close()
	c.Close()
	assert.True(t, c.Closed())
	assert.ErrorIs(t, c.Send([]byte("c")), ErrConnClosed)
}

func TestRegistryUnsubscribeRemovesEverywhere(t *testing.T) {
	reg := NewRegistry()
	c := NewConn(uuid.New(), "test", 0)
	other := NewConn(uuid.New(), "test", 0)
	roomA, roomB := uuid.New(), uuid.New()

	reg.JoinLobby(c)
	reg.SubscribeRoom(roomA, c)
	reg.SubscribeRoom(roomB, c)
	reg.SubscribeRoom(roomA, other)
	assert.ElementsMatch(t, []uuid.UUID{roomA, roomB}, reg.Rooms(c))

	reg.Unsubscribe(c)
	reg.Unsubscribe(c)

	assert.Empty(t, reg.LobbyConns())
	assert.Equal(t, []*Conn{other}, reg.RoomConns(roomA))
	assert.Empty(t, reg.RoomConns(roomB))
	assert.Empty(t, reg.Rooms(c))
}

func TestRegistryConcurrentUse(t *testing.T) {
	reg := NewRegistry()
	roomID := uuid.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewConn(uuid.New(), "test", 0)
			reg.JoinLobby(c)
			reg.SubscribeRoom(roomID, c)
			_ = reg.RoomConns(roomID)
			reg.Unsubscribe(c)
		}()
	}
	wg.Wait()
	assert.Empty(t, reg.LobbyConns())
	assert.Empty(t, reg.RoomConns(roomID))
}

func TestBroadcastRoomPrunesDeadConnections(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, quietLogger())
	roomID := uuid.New()

	live := NewConn(uuid.New(), "live", 4)
	closed := NewConn(uuid.New(), "closed", 4)
	full := NewConn(uuid.New(), "full", 1)
	require.NoError(t, full.Send([]byte(`{}`)))
	closed.Close()

	for _, c := range []*Conn{live, closed, full} {
		reg.SubscribeRoom(roomID, c)
	}

	n := b.BroadcastRoom(roomID, map[string]any{"type": "room_players"})
	assert.Equal(t, 1, n)
	assert.Equal(t, []*Conn{live}, reg.RoomConns(roomID))

	msgs := drain(t, live)
	require.Len(t, msgs, 1)
	assert.Equal(t, "room_players", msgs[0]["type"])
}

func TestBroadcastLobbyPrunesClosed(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, quietLogger())
	a := NewConn(uuid.New(), "a", 4)
	gone := NewConn(uuid.New(), "gone", 4)
	reg.JoinLobby(a)
	reg.JoinLobby(gone)
	gone.Close()

	assert.Equal(t, 1, b.BroadcastLobby(map[string]any{"type": "room_list"}))
	assert.Equal(t, []*Conn{a}, reg.LobbyConns())
}

func TestSendToNeverPanicsOnClosed(t *testing.T) {
	b := NewBroadcaster(NewRegistry(), quietLogger())
	c := NewConn(uuid.New(), "x", 1)
	c.Close()
	assert.NotPanics(t, func() { b.SendTo(c, map[string]string{"type": "error"}) })

	bad := NewConn(uuid.New(), "y", 1)
	b.SendTo(bad, make(chan int))
	assert.Empty(t, drain(t, bad))
}
