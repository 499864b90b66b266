// internal/handlers/user.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jason-s-yu/omok/internal/auth"
	"github.com/jason-s-yu/omok/internal/database"
	"github.com/jason-s-yu/omok/internal/models"
	"github.com/sirupsen/logrus"
)

// UserStore creates accounts and checks credentials.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	AuthenticateUser(ctx context.Context, email, password string) (string, *models.User, error)
}

// UserHandlers serves the account endpoints.
type UserHandlers struct {
	store  UserStore
	logger *logrus.Logger
}

func NewUserHandlers(store UserStore, logger *logrus.Logger) *UserHandlers {
	return &UserHandlers{store: store, logger: logger}
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

// CreateUser registers a new account. Email, password and nickname are required.
func (h *UserHandlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Nickname = strings.TrimSpace(req.Nickname)
	if req.Email == "" || req.Password == "" || req.Nickname == "" {
		http.Error(w, "email, password and nickname are required", http.StatusBadRequest)
		return
	}

	user := models.User{
		Email:    req.Email,
		Password: req.Password,
		Nickname: req.Nickname,
	}
	if err := h.store.CreateUser(r.Context(), &user); err != nil {
		if errors.Is(err, database.ErrDuplicateUser) {
			http.Error(w, "email or nickname already exists", http.StatusConflict)
			return
		}
		h.logger.Errorf("error creating user: %v", err)
		http.Error(w, "error creating user", http.StatusInternalServerError)
		return
	}

	user.Password = ""
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login checks credentials and returns a session token, which is also set as
// the auth_token cookie.
//
// Request payload:
//
//	{
//	  "email": "someone@example.com",
//	  "password": "password"
//	}
func (h *UserHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	token, user, err := h.store.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, database.ErrInvalidCredentials) {
			h.logger.Errorf("failed to authenticate user: %v", err)
		}
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}

	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	if auth.TokenExpiry > 0 {
		cookie.MaxAge = int(auth.TokenExpiry.Seconds())
	}
	http.SetCookie(w, cookie)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(loginResponse{Token: token, User: user}); err != nil {
		h.logger.Warnf("failed to write login response: %v", err)
	}
}

// Logout expires the session cookie. Tokens are stateless, so nothing is
// revoked server side.
func (h *UserHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}
