// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/omok/internal/hub"
	"github.com/jason-s-yu/omok/internal/middleware"
	"github.com/sirupsen/logrus"
)

// SocketServer owns the lobby and room websocket endpoints.
type SocketServer struct {
	router  *Router
	ids     IdentityResolver
	logger  *logrus.Logger
	origins []string
	sendBuf int
}

func NewSocketServer(router *Router, ids IdentityResolver, logger *logrus.Logger, origins []string) *SocketServer {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &SocketServer{
		router:  router,
		ids:     ids,
		logger:  logger,
		origins: origins,
		sendBuf: hub.DefaultSendBuffer,
	}
}

// LobbyHandler serves /ws/lobby.
func (s *SocketServer) LobbyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, "lobby",
			s.router.OpenLobby,
			s.router.HandleLobby,
		)
	}
}

// RoomHandler serves /ws/room?roomId=<uuid>.
func (s *SocketServer) RoomHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, err := uuid.Parse(r.URL.Query().Get("roomId"))
		if err != nil {
			http.Error(w, "invalid roomId", http.StatusBadRequest)
			return
		}
		s.serve(w, r, "room",
			func(ctx context.Context, c *hub.Conn) { s.router.OpenRoom(ctx, c, roomID) },
			s.router.HandleRoom,
		)
	}
}

func (s *SocketServer) serve(
	w http.ResponseWriter,
	r *http.Request,
	subprotocol string,
	open func(context.Context, *hub.Conn),
	handle func(context.Context, *hub.Conn, []byte),
) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{subprotocol},
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer ws.Close(websocket.StatusInternalError, "handler finished")

	// A client that offers subprotocols must offer ours; offering none is fine.
	if r.Header.Get("Sec-WebSocket-Protocol") != "" && ws.Subprotocol() != subprotocol {
		ws.Close(BadSubprotocolError, "client must speak the "+subprotocol+" subprotocol")
		return
	}

	userID, err := s.ids.Resolve(r)
	if err != nil {
		s.rejectUnauthenticated(r.Context(), ws, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := hub.NewConn(userID, r.RemoteAddr, s.sendBuf)
	middleware.LogWebSocketConnect(s.logger, r.RemoteAddr, r.URL.Path)

	go func() {
		hub.WritePump(ctx, ws, conn, s.logger)
		cancel()
	}()

	open(ctx, conn)
	readErr := readPump(ctx, ws, conn, s.logger, handle)

	s.router.Disconnect(conn)
	middleware.LogWebSocketDisconnect(s.logger, r.RemoteAddr, r.URL.Path, readErr)
	ws.Close(websocket.StatusNormalClosure, "")
}

func (s *SocketServer) rejectUnauthenticated(ctx context.Context, ws *websocket.Conn, err error) {
	s.logger.Infof("websocket authentication failed: %v", err)
	data, _ := json.Marshal(errorEvent("login required"))
	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	_ = ws.Write(writeCtx, websocket.MessageText, data)
	cancel()
	ws.Close(websocket.StatusPolicyViolation, "authentication failed")
}

// readPump feeds inbound text frames to handle one at a time until the socket
// closes or ctx is cancelled. It returns the terminating error unless the close
// was a normal one.
func readPump(ctx context.Context, ws *websocket.Conn, conn *hub.Conn, logger *logrus.Logger, handle func(context.Context, *hub.Conn, []byte)) error {
	log := logger.WithFields(logrus.Fields{"conn_id": conn.ID, "user_id": conn.UserID})
	for {
		typ, msg, err := ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Debugf("read error: %v", err)
			return err
		}
		if typ != websocket.MessageText {
			log.Warnf("ignoring non-text message type %d", typ)
			continue
		}
		handle(ctx, conn, msg)
	}
}
