// internal/handlers/router.go
package handlers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omok/internal/hub"
	"github.com/jason-s-yu/omok/internal/models"
	"github.com/jason-s-yu/omok/internal/room"
	"github.com/sirupsen/logrus"
)

// Router dispatches parsed lobby and room messages to the coordinator and turns
// committed results into broadcasts. Broadcasts are issued from the
// coordinator's commit hooks, so for any one room they go out in commit order.
type Router struct {
	coord  *room.Coordinator
	repo   room.Repository
	reg    *hub.Registry
	bc     *hub.Broadcaster
	logger *logrus.Logger
}

func NewRouter(coord *room.Coordinator, bc *hub.Broadcaster, logger *logrus.Logger) *Router {
	return &Router{
		coord:  coord,
		repo:   coord.Repository(),
		reg:    bc.Registry(),
		bc:     bc,
		logger: logger,
	}
}

// OpenLobby registers c on the lobby channel and sends it the current room list.
func (rt *Router) OpenLobby(ctx context.Context, c *hub.Conn) {
	rt.reg.JoinLobby(c)
	rt.sendRoomList(ctx, c)
}

// OpenRoom subscribes c to roomID and sends it the current player list.
func (rt *Router) OpenRoom(ctx context.Context, c *hub.Conn, roomID uuid.UUID) {
	rt.reg.SubscribeRoom(roomID, c)
	rt.sendPlayers(ctx, c, roomID)
}

// Disconnect drops c from every channel and closes its outbound queue.
func (rt *Router) Disconnect(c *hub.Conn) {
	rt.reg.Unsubscribe(c)
	c.Close()
}

// HandleLobby processes one inbound lobby frame from c.
func (rt *Router) HandleLobby(ctx context.Context, c *hub.Conn, data []byte) {
	msg, err := ParseLobbyMessage(data)
	if err != nil {
		rt.fail(c, err)
		return
	}

	switch m := msg.(type) {
	case RefreshMsg:
		rt.sendRoomList(ctx, c)
	case CreateRoomMsg:
		err = rt.createRoom(ctx, c, m)
	case EnterRoomMsg:
		err = rt.enterRoom(ctx, c, m)
	case LeaveRoomMsg:
		err = rt.leaveRoom(ctx, c, m)
	}
	if err != nil {
		rt.fail(c, err)
	}
}

// HandleRoom processes one inbound room frame from c.
func (rt *Router) HandleRoom(ctx context.Context, c *hub.Conn, data []byte) {
	msg, err := ParseRoomMessage(data)
	if err != nil {
		rt.fail(c, err)
		return
	}

	switch m := msg.(type) {
	case RefreshPlayersMsg:
		rt.sendPlayers(ctx, c, m.RoomID)
	}
}

func (rt *Router) createRoom(ctx context.Context, c *hub.Conn, m CreateRoomMsg) error {
	created, err := rt.coord.CreateAndEnter(ctx, room.CreateParams{
		HostUserID: c.UserID,
		Name:       m.RoomName,
		IsPublic:   m.IsPublic,
		PlayType:   m.PlayType,
		Capacity:   m.TotalUserCnt,
		Password:   m.RoomPwd,
	}, func(r *models.Room) {
		rt.bc.BroadcastLobby(roomCreatedEvent(r))
		rt.broadcastRoomList(ctx)
		rt.broadcastPlayers(ctx, r.ID)
	})
	if err != nil {
		return err
	}
	rt.bc.SendTo(c, ackEvent("create_room_ok", created.ID))
	return nil
}

func (rt *Router) enterRoom(ctx context.Context, c *hub.Conn, m EnterRoomMsg) error {
	_, err := rt.coord.Join(ctx, m.RoomID, c.UserID, m.RoomPwd, func(res room.JoinResult) {
		rt.bc.BroadcastLobby(roomStateEvent(res.Room))
		rt.broadcastPlayers(ctx, m.RoomID)
	})
	if err != nil {
		return err
	}
	rt.bc.SendTo(c, ackEvent("enter_ok", m.RoomID))
	return nil
}

func (rt *Router) leaveRoom(ctx context.Context, c *hub.Conn, m LeaveRoomMsg) error {
	_, err := rt.coord.Leave(ctx, m.RoomID, c.UserID, func(res room.LeaveResult) {
		if res.Outcome == room.LeaveRoomDeleted {
			rt.bc.BroadcastLobby(roomDeletedEvent(res.RoomID))
			rt.broadcastRoomList(ctx)
			rt.bc.BroadcastRoom(res.RoomID, roomDeletedEvent(res.RoomID))
			return
		}
		rt.broadcastRoomState(ctx, res.RoomID)
		rt.broadcastPlayers(ctx, res.RoomID)
		if res.Outcome == room.LeaveHostTransferred {
			rt.bc.BroadcastLobby(hostChangedEvent(res.RoomID, res.NewHostUserID))
		}
	})
	if err != nil {
		return err
	}
	rt.bc.SendTo(c, ackEvent("leave_ok", m.RoomID))
	return nil
}

func (rt *Router) sendRoomList(ctx context.Context, c *hub.Conn) {
	rooms, err := rt.repo.ListPublicRooms(ctx)
	if err != nil {
		rt.fail(c, err)
		return
	}
	rt.bc.SendTo(c, roomListEvent(rooms))
}

func (rt *Router) sendPlayers(ctx context.Context, c *hub.Conn, roomID uuid.UUID) {
	players, err := rt.repo.ListPlayers(ctx, roomID)
	if err != nil {
		rt.fail(c, err)
		return
	}
	rt.bc.SendTo(c, roomPlayersEvent(roomID, players))
}

func (rt *Router) broadcastRoomList(ctx context.Context) {
	rooms, err := rt.repo.ListPublicRooms(ctx)
	if err != nil {
		rt.logger.Errorf("room list broadcast skipped: %v", err)
		return
	}
	rt.bc.BroadcastLobby(roomListEvent(rooms))
}

// broadcastRoomState sends the room's current row to the lobby, or the whole
// list if the room no longer exists.
func (rt *Router) broadcastRoomState(ctx context.Context, roomID uuid.UUID) {
	r, err := rt.repo.FindRoom(ctx, roomID)
	if errors.Is(err, room.ErrRoomNotFound) {
		rt.broadcastRoomList(ctx)
		return
	}
	if err != nil {
		rt.logger.WithField("room_id", roomID).Errorf("room state broadcast skipped: %v", err)
		return
	}
	rt.bc.BroadcastLobby(roomStateEvent(r))
}

func (rt *Router) broadcastPlayers(ctx context.Context, roomID uuid.UUID) {
	players, err := rt.repo.ListPlayers(ctx, roomID)
	if err != nil {
		rt.logger.WithField("room_id", roomID).Errorf("player list broadcast skipped: %v", err)
		return
	}
	rt.bc.BroadcastRoom(roomID, roomPlayersEvent(roomID, players))
}

// fail reports err to c only. Storage failures are logged and answered with a
// generic message.
func (rt *Router) fail(c *hub.Conn, err error) {
	rt.bc.SendTo(c, errorEvent(userMessage(err)))

	log := rt.logger.WithFields(logrus.Fields{"conn_id": c.ID, "user_id": c.UserID})
	if errors.Is(err, room.ErrStorage) || !isClientError(err) {
		log.Errorf("request failed: %v", err)
		return
	}
	log.Debugf("request rejected: %v", err)
}

func isClientError(err error) bool {
	var unknown *UnknownMessageError
	return errors.As(err, &unknown) ||
		errors.Is(err, room.ErrValidation) ||
		errors.Is(err, room.ErrRoomNotFound) ||
		errors.Is(err, room.ErrRoomFull) ||
		errors.Is(err, room.ErrWrongPassword) ||
		errors.Is(err, room.ErrAlreadyInRoom)
}

// userMessage maps an error to the text shown to the requester.
func userMessage(err error) string {
	var unknown *UnknownMessageError
	var invalid *room.ValidationError
	switch {
	case errors.As(err, &unknown):
		return unknown.Error()
	case errors.As(err, &invalid):
		return invalid.Error()
	case errors.Is(err, room.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, room.ErrRoomFull):
		return "room is full"
	case errors.Is(err, room.ErrWrongPassword):
		return "wrong room password"
	case errors.Is(err, room.ErrAlreadyInRoom):
		return "already in this room"
	}
	return "request failed, please try again"
}
