// Package store provides the durable account repository.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/chattrix/chattrix/internal/models"
)

var (
	// ErrNotFound signals an absent account.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate signals a unique-index violation on username or email.
	ErrDuplicate = errors.New("user already exists")
	// ErrUnavailable wraps database transport failures.
	ErrUnavailable = errors.New("user store unavailable")
)

// UserRepository is the durable side of the auth core. Implementations must
// be safe for concurrent use by independent requests.
type UserRepository interface {
	Insert(ctx context.Context, user *models.User) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	UpdatePresence(ctx context.Context, id, status string, lastSeen time.Time) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	UpdateProfile(ctx context.Context, id, avatar, bio string) error
	List(ctx context.Context) ([]models.User, error)
}
