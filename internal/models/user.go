package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Account statuses stored in the users collection.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// User is the durable account document. Created only once registration OTP
// verification succeeds; password material is always an argon2id PHC string,
// never the raw password.
type User struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty"`
	Username     string               `bson:"username"`
	Email        string               `bson:"email"`
	PasswordHash string               `bson:"passwordHash"`
	IsVerified   bool                 `bson:"isVerified"`
	Status       string               `bson:"status"`
	LastSeen     time.Time            `bson:"lastSeen"`
	Avatar       string               `bson:"avatar,omitempty"`
	Bio          string               `bson:"bio,omitempty"`
	Friends      []primitive.ObjectID `bson:"friends,omitempty"`
	CreatedAt    time.Time            `bson:"createdAt"`
}

// PublicUser is the projection returned to clients. Tokens and password
// material never appear here.
type PublicUser struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"isVerified"`
	Status     string    `json:"status,omitempty"`
	LastSeen   time.Time `json:"lastSeen,omitzero"`
	Avatar     string    `json:"avatar,omitempty"`
	Bio        string    `json:"bio,omitempty"`
}

// Public returns the client-safe projection of the account.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID.Hex(),
		Username:   u.Username,
		Email:      u.Email,
		IsVerified: u.IsVerified,
		Status:     u.Status,
		LastSeen:   u.LastSeen,
		Avatar:     u.Avatar,
		Bio:        u.Bio,
	}
}
