// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jason-s-yu/omok/internal/models"
	"github.com/jason-s-yu/omok/internal/room"
	"github.com/sirupsen/logrus"
)

// ListRoomsHandler serves GET /rooms: the public room list, newest first.
func ListRoomsHandler(repo room.Repository, ids IdentityResolver, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, err := ids.Resolve(r); err != nil {
			http.Error(w, "login required", http.StatusUnauthorized)
			return
		}

		rooms, err := repo.ListPublicRooms(r.Context())
		if err != nil {
			logger.Errorf("failed to list rooms: %v", err)
			http.Error(w, "failed to list rooms", http.StatusInternalServerError)
			return
		}
		if rooms == nil {
			rooms = []models.Room{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"rooms": rooms})
	}
}
