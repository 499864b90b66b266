// internal/hub/pump.go
package hub

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const (
	pingInterval = 30 * time.Second
	pingTimeout  = 15 * time.Second
	writeTimeout = 5 * time.Second
)

// WritePump drains c.OutChan onto ws and pings periodically. It returns when ctx
// is done, the queue is closed, or a write fails.
func WritePump(ctx context.Context, ws *websocket.Conn, c *Conn, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	log := logger.WithFields(logrus.Fields{"conn_id": c.ID, "user_id": c.UserID})

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.OutChan:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.Warnf("failed to write to websocket: %v", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Warnf("ping failed, assuming disconnect: %v", err)
				return
			}
		}
	}
}
