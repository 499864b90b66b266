// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the lobby and room sockets.
const (
	BadSubprotocolError = 3000 // Client offered subprotocols but not the one this endpoint speaks.
)
