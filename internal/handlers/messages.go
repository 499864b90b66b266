// internal/handlers/messages.go
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omok/internal/models"
	"github.com/jason-s-yu/omok/internal/room"
)

// Defaults applied to create_room fields a client leaves out.
const (
	defaultIsPublic = 1
	defaultPlayType = 1
	defaultCapacity = 2
)

// LobbyMessage is one of the requests accepted on the lobby socket:
// RefreshMsg, CreateRoomMsg, EnterRoomMsg or LeaveRoomMsg.
type LobbyMessage interface {
	lobbyMessage()
}

// RoomMessage is one of the requests accepted on the room socket. Currently
// only RefreshPlayersMsg.
type RoomMessage interface {
	roomMessage()
}

type RefreshMsg struct{}

type CreateRoomMsg struct {
	RoomName     string
	IsPublic     bool
	PlayType     int
	TotalUserCnt int
	RoomPwd      string
}

type EnterRoomMsg struct {
	RoomID  uuid.UUID
	RoomPwd string
}

type LeaveRoomMsg struct {
	RoomID uuid.UUID
}

type RefreshPlayersMsg struct {
	RoomID uuid.UUID
}

func (RefreshMsg) lobbyMessage() {}
func (CreateRoomMsg) lobbyMessage() {}
func (EnterRoomMsg) lobbyMessage() {}
func (LeaveRoomMsg) lobbyMessage() {}
func (RefreshPlayersMsg) roomMessage() {}

// UnknownMessageError is returned for an envelope whose type is not handled on
// the channel it arrived on.
type UnknownMessageError struct {
	Type string
}

func (e *UnknownMessageError) Error() string {
	return fmt.Sprintf("unsupported message type: %s", e.Type)
}

type envelope map[string]json.RawMessage

func decodeEnvelope(data []byte) (envelope, string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env == nil {
		return nil, "", &room.ValidationError{Reason: "message is not a JSON object"}
	}
	typ, ok, err := env.str("type")
	if err != nil {
		return nil, "", err
	}
	if !ok || typ == "" {
		return nil, "", &room.ValidationError{Field: "type", Reason: "missing message type"}
	}
	return env, typ, nil
}

// ParseLobbyMessage decodes a lobby envelope into its typed form.
func ParseLobbyMessage(data []byte) (LobbyMessage, error) {
	env, typ, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "refresh":
		return RefreshMsg{}, nil
	case "create_room":
		return parseCreateRoom(env)
	case "enter_room":
		id, err := env.requiredUUID("roomId")
		if err != nil {
			return nil, err
		}
		pwd, err := env.password("roomPwd")
		if err != nil {
			return nil, err
		}
		return EnterRoomMsg{RoomID: id, RoomPwd: pwd}, nil
	case "leave_room":
		id, err := env.requiredUUID("roomId")
		if err != nil {
			return nil, err
		}
		return LeaveRoomMsg{RoomID: id}, nil
	}
	return nil, &UnknownMessageError{Type: typ}
}

// ParseRoomMessage decodes a room envelope into its typed form.
func ParseRoomMessage(data []byte) (RoomMessage, error) {
	env, typ, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "refresh_players":
		id, err := env.requiredUUID("roomId")
		if err != nil {
			return nil, err
		}
		return RefreshPlayersMsg{RoomID: id}, nil
	}
	return nil, &UnknownMessageError{Type: typ}
}

func parseCreateRoom(env envelope) (CreateRoomMsg, error) {
	var msg CreateRoomMsg
	name, _, err := env.str("roomName")
	if err != nil {
		return msg, err
	}
	msg.RoomName = strings.TrimSpace(name)
	if msg.RoomName == "" {
		return msg, &room.ValidationError{Field: "roomName", Reason: "room name is empty"}
	}

	isPublic, err := env.flag("isPublic", defaultIsPublic)
	if err != nil {
		return msg, err
	}
	msg.IsPublic = isPublic == 1
	if msg.PlayType, err = env.integer("playType", defaultPlayType); err != nil {
		return msg, err
	}
	if msg.TotalUserCnt, err = env.integer("totalUserCnt", defaultCapacity); err != nil {
		return msg, err
	}
	if msg.RoomPwd, err = env.password("roomPwd"); err != nil {
		return msg, err
	}
	return msg, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// str returns a string field; ok is false when it is absent or null.
func (e envelope) str(field string) (string, bool, error) {
	raw, present := e[field]
	if !present || isNull(raw) {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, &room.ValidationError{Field: field, Reason: "must be a string"}
	}
	return s, true, nil
}

func (e envelope) requiredUUID(field string) (uuid.UUID, error) {
	s, ok, err := e.str(field)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok || s == "" {
		return uuid.Nil, &room.ValidationError{Field: field, Reason: "is required"}
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, &room.ValidationError{Field: field, Reason: "is not a valid id"}
	}
	return id, nil
}

// password returns an optional password; a literal "null" counts as absent.
func (e envelope) password(field string) (string, error) {
	s, _, err := e.str(field)
	if err != nil {
		return "", err
	}
	if s == "null" {
		return "", nil
	}
	return s, nil
}

// integer accepts a JSON number or a numeric string; absent or null yields def.
func (e envelope) integer(field string, def int) (int, error) {
	raw, present := e[field]
	if !present || isNull(raw) {
		return def, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, &room.ValidationError{Field: field, Reason: "must be a number"}
	}
	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		if strings.TrimSpace(t) == "" {
			return def, nil
		}
		n = json.Number(strings.TrimSpace(t))
	default:
		return 0, &room.ValidationError{Field: field, Reason: "must be a number"}
	}
	i, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, &room.ValidationError{Field: field, Reason: "must be an integer"}
	}
	return i, nil
}

// flag is integer restricted to 0/1, also accepting JSON booleans.
func (e envelope) flag(field string, def int) (int, error) {
	if raw, ok := e[field]; ok && !isNull(raw) {
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			if b {
				return 1, nil
			}
			return 0, nil
		}
	}
	v, err := e.integer(field, def)
	if err != nil {
		return 0, err
	}
	if v != 0 && v != 1 {
		return 0, &room.ValidationError{Field: field, Reason: "must be 0 or 1"}
	}
	return v, nil
}

// Outbound events. Each is a flat JSON object tagged by "type".

func errorEvent(message string) map[string]interface{} {
	return map[string]interface{}{"type": "error", "message": message}
}

func roomListEvent(rooms []models.Room) map[string]interface{} {
	if rooms == nil {
		rooms = []models.Room{}
	}
	return map[string]interface{}{"type": "room_list", "rooms": rooms}
}

func roomCreatedEvent(r *models.Room) map[string]interface{} {
	return map[string]interface{}{"type": "room_created", "room": r}
}

func roomStateEvent(r *models.Room) map[string]interface{} {
	return map[string]interface{}{"type": "room_state", "room": r}
}

func roomDeletedEvent(roomID uuid.UUID) map[string]interface{} {
	return map[string]interface{}{"type": "room_deleted", "roomId": roomID.String()}
}

func hostChangedEvent(roomID, newHost uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"type":          "host_changed",
		"roomId":        roomID.String(),
		"newHostUserId": newHost.String(),
	}
}

func roomPlayersEvent(roomID uuid.UUID, players []models.PlayerInfo) map[string]interface{} {
	if players == nil {
		players = []models.PlayerInfo{}
	}
	return map[string]interface{}{
		"type":    "room_players",
		"roomId":  roomID.String(),
		"players": players,
	}
}

func ackEvent(typ string, roomID uuid.UUID) map[string]interface{} {
	return map[string]interface{}{"type": typ, "roomId": roomID.String()}
}
