package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/omok/internal/auth"
	"github.com/jason-s-yu/omok/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*fixture, string) {
	t.Helper()
	require.NoError(t, auth.Init(0))
	f := newFixture(t)
	mux := NewMux(f.rt, NewUserHandlers(database.NewMemoryUsers(), quietLogger()), JWTResolver{}, quietLogger(), nil)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialAs(ctx context.Context, t *testing.T, url string, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	token, err := auth.CreateJWT(userID.String())
	require.NoError(t, err)
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Cookie": []string{authCookieName + "=" + token}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func readEvent(ctx context.Context, t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

// readUntil reads events until one of type typ arrives.
func readUntil(ctx context.Context, t *testing.T, c *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for {
		ev := readEvent(ctx, t, c)
		if ev["type"] == typ {
			return ev
		}
	}
}

func TestWebSocketCreateThenWatchRoom(t *testing.T) {
	_, base := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, bob := uuid.New(), uuid.New()
	lobby := dialAs(ctx, t, base+"/ws/lobby", alice)
	assert.Equal(t, "room_list", readEvent(ctx, t, lobby)["type"])

	require.NoError(t, lobby.Write(ctx, websocket.MessageText,
		[]byte(`{"type":"create_room","roomName":"gomoku","totalUserCnt":"2"}`)))
	ack := readUntil(ctx, t, lobby, "create_room_ok")
	roomID := ack["roomId"].(string)

	watch := dialAs(ctx, t, base+"/ws/room?roomId="+roomID, alice)
	players := readEvent(ctx, t, watch)
	require.Equal(t, "room_players", players["type"])
	assert.Len(t, players["players"], 1)

	bobLobby := dialAs(ctx, t, base+"/ws/lobby", bob)
	readEvent(ctx, t, bobLobby)
	require.NoError(t, bobLobby.Write(ctx, websocket.MessageText,
		[]byte(`{"type":"enter_room","roomId":"`+roomID+`"}`)))
	readUntil(ctx, t, bobLobby, "enter_ok")

	players = readEvent(ctx, t, watch)
	require.Equal(t, "room_players", players["type"])
	assert.Len(t, players["players"], 2)

	state := readUntil(ctx, t, lobby, "room_state")
	assert.EqualValues(t, 2, state["room"].(map[string]any)["currentUserCnt"])
}

func TestWebSocketRejectsAnonymous(t *testing.T) {
	_, base := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, base+"/ws/lobby", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	ev := readEvent(ctx, t, c)
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "login required", ev["message"])

	_, _, err = c.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestWebSocketRoomRequiresRoomID(t *testing.T) {
	_, base := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, base+"/ws/room?roomId=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketDisconnectCleansRegistry(t *testing.T) {
	f, base := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dialAs(ctx, t, base+"/ws/lobby", uuid.New())
	readEvent(ctx, t, c)
	require.Len(t, f.reg.LobbyConns(), 1)

	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return len(f.reg.LobbyConns()) == 0 }, 2*time.Second, 10*time.Millisecond)
}
