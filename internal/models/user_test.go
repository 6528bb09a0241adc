package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestPublicProjectionHidesPasswordMaterial(t *testing.T) {
	u := User{
		ID:           primitive.NewObjectID(),
		Username:     "alice",
		Email:        "a@x.com",
		PasswordHash: "$argon2id$...",
		IsVerified:   true,
		Status:       StatusOnline,
		LastSeen:     time.Now(),
	}

	raw, err := json.Marshal(u.Public())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "argon2id")
	assert.NotContains(t, string(raw), "passwordHash")
}

func TestPublicProjectionOmitsUnsetLastSeen(t *testing.T) {
	u := User{
		ID:       primitive.NewObjectID(),
		Username: "alice",
		Email:    "a@x.com",
	}

	raw, err := json.Marshal(u.Public())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "lastSeen", "zero time must not serialize")
	assert.NotContains(t, string(raw), "0001-01-01")

	u.LastSeen = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	raw, err = json.Marshal(u.Public())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "lastSeen")
}
