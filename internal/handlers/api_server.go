// internal/handlers/api_server.go
package handlers

import (
	"net/http"

	"github.com/jason-s-yu/omok/internal/middleware"
	"github.com/sirupsen/logrus"
)

// NewMux wires every HTTP and websocket route.
func NewMux(router *Router, users *UserHandlers, ids IdentityResolver, logger *logrus.Logger, origins []string) *http.ServeMux {
	logged := middleware.LogMiddleware(logger)
	sockets := NewSocketServer(router, ids, logger, origins)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", PingHandler)

	// user endpoints
	mux.Handle("/user/create", logged(postOnly(users.CreateUser)))
	mux.Handle("/user/login", logged(postOnly(users.Login)))
	mux.Handle("/user/logout", logged(postOnly(users.Logout)))

	// lobby REST view
	mux.Handle("/rooms", logged(ListRoomsHandler(router.repo, ids, logger)))

	// sockets
	mux.Handle("/ws/lobby", logged(sockets.LobbyHandler()))
	mux.Handle("/ws/room", logged(sockets.RoomHandler()))

	return mux
}

// PingHandler answers liveness probes.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func postOnly(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	})
}
