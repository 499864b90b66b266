// internal/hub/broadcaster.go
package hub

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Broadcaster fans events out to registry connections. Delivery is best effort:
// a connection that is closed or cannot take the frame is dropped from the set
// it was reached through.
type Broadcaster struct {
	reg    *Registry
	logger *logrus.Logger
}

func NewBroadcaster(reg *Registry, logger *logrus.Logger) *Broadcaster {
	return &Broadcaster{reg: reg, logger: logger}
}

func (b *Broadcaster) Registry() *Registry { return b.reg }

// SendTo makes a single attempt to deliver event to c. Failures are logged only.
func (b *Broadcaster) SendTo(c *Conn, event any) {
	data, ok := b.encode(event)
	if !ok {
		return
	}
	if err := c.Send(data); err != nil {
		b.logger.WithFields(logrus.Fields{
			"conn_id": c.ID,
			"user_id": c.UserID,
		}).Warnf("direct send dropped: %v", err)
	}
}

// BroadcastRoom sends event to every connection subscribed to roomID and returns
// how many accepted it.
func (b *Broadcaster) BroadcastRoom(roomID uuid.UUID, event any) int {
	data, ok := b.encode(event)
	if !ok {
		return 0
	}
	return b.fanOut(b.reg.RoomConns(roomID), data, func(c *Conn) {
		b.reg.LeaveRoom(roomID, c)
	}, logrus.Fields{"room_id": roomID})
}

// BroadcastLobby sends event to every lobby connection and returns how many
// accepted it.
func (b *Broadcaster) BroadcastLobby(event any) int {
	data, ok := b.encode(event)
	if !ok {
		return 0
	}
	return b.fanOut(b.reg.LobbyConns(), data, b.reg.LeaveLobby, logrus.Fields{"channel": "lobby"})
}

func (b *Broadcaster) fanOut(conns []*Conn, data []byte, prune func(*Conn), fields logrus.Fields) int {
	delivered := 0
	for _, c := range conns {
		if err := c.Send(data); err != nil {
			prune(c)
			b.logger.WithFields(fields).WithField("conn_id", c.ID).Infof("pruned connection: %v", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (b *Broadcaster) encode(event any) ([]byte, bool) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Errorf("failed to marshal outgoing event: %v", err)
		return nil, false
	}
	return data, true
}
