package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role values for the users collection
const (
	RoleUser   = "user"
	RoleLawyer = "lawyer"
)

// SessionTTL is how long a session token stays valid after creation
const SessionTTL = 24 * time.Hour

// User holds the structure for the user collection in mongo
type User struct {
	ID            primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Email         string             `json:"email" bson:"email"`
	Password      string             `json:"-" bson:"password"`
	Name          string             `json:"name" bson:"name"`
	WalletBalance int64              `json:"walletBalance" bson:"walletBalance"`
	Role          string             `json:"role" bson:"role"`
	Sessions      []Session          `json:"-" bson:"sessions"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
}

// Session is one active login for a principal. Tokens expire SessionTTL
// after CreatedAt regardless of explicit logout.
type Session struct {
	Token     string    `json:"token" bson:"token"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Expired reports whether the session token is past its TTL at the given time
func (s Session) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) >= SessionTTL
}
