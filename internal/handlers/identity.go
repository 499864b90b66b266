// internal/handlers/identity.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omok/internal/auth"
)

// ErrNotAuthenticated is returned when a request carries no valid session token.
var ErrNotAuthenticated = errors.New("not authenticated")

// authCookieName is the cookie the login handler sets.
const authCookieName = "auth_token"

// IdentityResolver maps an incoming request (HTTP or websocket upgrade) to a user id.
type IdentityResolver interface {
	Resolve(r *http.Request) (uuid.UUID, error)
}

// JWTResolver reads a session token from the auth_token cookie, a bearer
// Authorization header, or a "token" query parameter, in that order.
type JWTResolver struct{}

func (JWTResolver) Resolve(r *http.Request) (uuid.UUID, error) {
	token := requestToken(r)
	if token == "" {
		return uuid.Nil, ErrNotAuthenticated
	}
	sub, err := auth.AuthenticateJWT(token)
	if err != nil {
		return uuid.Nil, ErrNotAuthenticated
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrNotAuthenticated
	}
	return id, nil
}

func requestToken(r *http.Request) string {
	if token := extractCookieToken(r.Header.Get("Cookie"), authCookieName); token != "" {
		return token
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}
