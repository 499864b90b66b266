// internal/database/users_memory.go
package database

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omok/internal/auth"
	"github.com/jason-s-yu/omok/internal/models"
)

// PostgresUsers exposes the package-level user queries through the same method
// set as MemoryUsers.
type PostgresUsers struct{}

func (PostgresUsers) CreateUser(ctx context.Context, user *models.User) error {
	return CreateUser(ctx, user)
}

func (PostgresUsers) AuthenticateUser(ctx context.Context, email, password string) (string, *models.User, error) {
	return AuthenticateUser(ctx, email, password)
}

// MemoryUsers is a process-local user table for the memory store backend.
type MemoryUsers struct {
	mu        sync.Mutex
	byEmail   map[string]models.User
	nicknames map[string]struct{}

	// OnCreate, if set, is called after a user is stored (outside the lock).
	OnCreate func(models.User)
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{
		byEmail:   make(map[string]models.User),
		nicknames: make(map[string]struct{}),
	}
}

func (m *MemoryUsers) CreateUser(ctx context.Context, user *models.User) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	hash, err := auth.CreateHash(user.Password, auth.Params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	m.mu.Lock()
	if _, ok := m.byEmail[email]; ok {
		m.mu.Unlock()
		return ErrDuplicateUser
	}
	if _, ok := m.nicknames[user.Nickname]; ok {
		m.mu.Unlock()
		return ErrDuplicateUser
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = email
	user.Password = hash
	user.CreatedAt = time.Now()
	m.byEmail[email] = *user
	m.nicknames[user.Nickname] = struct{}{}
	m.mu.Unlock()

	if m.OnCreate != nil {
		m.OnCreate(*user)
	}
	return nil
}

func (m *MemoryUsers) AuthenticateUser(ctx context.Context, email, password string) (string, *models.User, error) {
	m.mu.Lock()
	u, ok := m.byEmail[strings.ToLower(strings.TrimSpace(email))]
	m.mu.Unlock()
	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	match, err := auth.ComparePasswordAndHash(password, u.Password)
	if err != nil || !match {
		return "", nil, ErrInvalidCredentials
	}

	token, err := auth.CreateJWT(u.ID.String())
	if err != nil {
		return "", nil, fmt.Errorf("failed to create jwt: %w", err)
	}
	u.Password = ""
	return token, &u, nil
}
