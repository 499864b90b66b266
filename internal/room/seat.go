package room

import "github.com/jason-s-yu/omok/internal/models"

// NextSeat returns the lowest-numbered seat not held by any of players. With
// two seats this gives the host FIRST and the joiner SECOND, and hands FIRST
// back out once its holder leaves.
func NextSeat(players []models.PlayerInfo) models.Seat {
	taken := make(map[models.Seat]bool, len(players))
	for _, p := range players {
		taken[p.Seat] = true
	}
	seat := models.SeatFirst
	for taken[seat] {
		seat++
	}
	return seat
}
