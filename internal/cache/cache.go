// Package cache is the ephemeral store layer: staged registrations, reset
// tickets, refresh-token hashes, and rate-limit markers, all TTL-bounded in
// Redis. Nothing here is durable; abandoned flows self-heal by expiry.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound signals an absent or expired key.
	ErrNotFound = errors.New("cache record not found")
	// ErrUnavailable wraps Redis transport failures.
	ErrUnavailable = errors.New("cache unavailable")
)

// StagedRegistration is the not-yet-durable account awaiting OTP
// confirmation. Password holds the raw submitted password; hashing is
// deferred until verification succeeds so an abandoned registration never
// persists a hash.
type StagedRegistration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

// ResetTicket gates a password reset on proof of mailbox control.
type ResetTicket struct {
	OTP string `json:"otp"`
}

// Store wraps the shared Redis client. Safe for concurrent use.
type Store struct {
	redis redis.UniversalClient
}

// NewStore returns a Store backed by the given client.
func NewStore(redisClient redis.UniversalClient) *Store {
	return &Store{redis: redisClient}
}

// SaveStagedRegistration writes the staged payload under register:<email>,
// replacing any prior entry (last-issued-wins).
func (s *Store) SaveStagedRegistration(ctx context.Context, staged StagedRegistration, ttl time.Duration) error {
	return s.setJSON(ctx, RegistrationKey(staged.Email), staged, ttl)
}

// GetStagedRegistration loads the staged payload, ErrNotFound once expired.
func (s *Store) GetStagedRegistration(ctx context.Context, email string) (*StagedRegistration, error) {
	var staged StagedRegistration
	if err := s.getJSON(ctx, RegistrationKey(email), &staged); err != nil {
		return nil, err
	}
	return &staged, nil
}

// DeleteStagedRegistration consumes the staged payload. Idempotent.
func (s *Store) DeleteStagedRegistration(ctx context.Context, email string) error {
	return s.delete(ctx, RegistrationKey(email))
}

// SaveResetTicket writes the reset ticket under reset:<email>.
func (s *Store) SaveResetTicket(ctx context.Context, email string, ticket ResetTicket, ttl time.Duration) error {
	return s.setJSON(ctx, ResetKey(email), ticket, ttl)
}

// GetResetTicket loads the reset ticket, ErrNotFound once expired.
func (s *Store) GetResetTicket(ctx context.Context, email string) (*ResetTicket, error) {
	var ticket ResetTicket
	if err := s.getJSON(ctx, ResetKey(email), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// DeleteResetTicket consumes the reset ticket. Idempotent.
func (s *Store) DeleteResetTicket(ctx context.Context, email string) error {
	return s.delete(ctx, ResetKey(email))
}

// SaveRefreshHash stores the one-way hash of the currently valid refresh
// token for the account, replacing any prior hash. At most one refresh hash
// exists per account; replacement invalidates every other outstanding
// refresh token.
func (s *Store) SaveRefreshHash(ctx context.Context, userID, hash string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, RefreshKey(userID), hash, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetRefreshHash returns the stored refresh hash, ErrNotFound if the session
// record is absent.
func (s *Store) GetRefreshHash(ctx context.Context, userID string) (string, error) {
	hash, err := s.redis.Get(ctx, RefreshKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return hash, nil
}

// DeleteRefreshHash revokes the account's session record. Idempotent.
func (s *Store) DeleteRefreshHash(ctx context.Context, userID string) error {
	return s.delete(ctx, RefreshKey(userID))
}

func (s *Store) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, key, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, key string, out any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: corrupt record at %s", ErrNotFound, key)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
