// Package rate enforces the per-email OTP cooldown with Redis existence
// markers.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCooldown means a marker is present and the caller must fail the
	// request without issuing an OTP.
	ErrCooldown = errors.New("cooldown active")
	// ErrUnavailable wraps Redis transport failures.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

// Limiter is an advisory cooldown gate. The check and the arm are separate
// round trips: two requests inside the same tick can both pass the check.
// That race is accepted; the marker TTL bounds the damage to one extra OTP.
type Limiter struct {
	redis redis.UniversalClient
}

// New returns a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient}
}

// Check returns ErrCooldown if a marker exists for key. Presence blocks
// unconditionally regardless of marker payload.
func (l *Limiter) Check(ctx context.Context, key string) error {
	n, err := l.redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n > 0 {
		return ErrCooldown
	}
	return nil
}

// Arm writes the marker with the given TTL. Called after a successful OTP
// issuance, not before.
func (l *Limiter) Arm(ctx context.Context, key string, ttl time.Duration) error {
	if err := l.redis.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Disarm removes the marker. Used when a flow completes before the window
// elapses.
func (l *Limiter) Disarm(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
