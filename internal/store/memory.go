package store

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chattrix/chattrix/internal/models"
)

// MemoryUsers is an in-memory UserRepository with the same contract as the
// mongo implementation, including unique username/email enforcement. Used in
// tests and for running the server without a database.
type MemoryUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

// NewMemoryUsers returns an empty in-memory repository.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]*models.User)}
}

func (m *MemoryUsers) Insert(_ context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email {
			return nil, ErrDuplicate
		}
	}
	user.ID = primitive.NewObjectID()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	clone := *user
	m.users[user.ID.Hex()] = &clone
	return user, nil
}

func (m *MemoryUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *MemoryUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryUsers) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryUsers) UpdatePresence(_ context.Context, id, status string, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	u.LastSeen = lastSeen
	return nil
}

func (m *MemoryUsers) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *MemoryUsers) UpdateProfile(_ context.Context, id, avatar, bio string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	if avatar != "" {
		u.Avatar = avatar
	}
	if bio != "" {
		u.Bio = bio
	}
	return nil
}

func (m *MemoryUsers) List(_ context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}
