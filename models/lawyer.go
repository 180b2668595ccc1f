package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Lawyer holds the structure for the lawyers collection in mongo.
//
// A lawyer is either linked to a shared-role user via UserID, or a
// directly-registered principal carrying its own password and sessions.
type Lawyer struct {
	ID              primitive.ObjectID  `json:"_id" bson:"_id,omitempty"`
	UserID          *primitive.ObjectID `json:"userId,omitempty" bson:"userId,omitempty"`
	Name            string              `json:"name" bson:"name"`
	Email           string              `json:"email" bson:"email"`
	Specialization  string              `json:"specialization" bson:"specialization"`
	Experience      int                 `json:"experience" bson:"experience"`
	PricePerSession int64               `json:"pricePerSession" bson:"pricePerSession"`
	Availability    []AvailabilitySlot  `json:"availability" bson:"availability"`
	Rating          Rating              `json:"rating" bson:"rating"`
	Password        string              `json:"-" bson:"password,omitempty"`
	Sessions        []Session           `json:"-" bson:"sessions,omitempty"`
	CreatedAt       time.Time           `json:"createdAt" bson:"createdAt"`
}

// AvailabilitySlot is one day/time-window entry in a lawyer's availability list
type AvailabilitySlot struct {
	Day       string `json:"day" bson:"day"`
	StartTime string `json:"startTime" bson:"startTime"`
	EndTime   string `json:"endTime" bson:"endTime"`
}

// Rating is the aggregate review score for a lawyer
type Rating struct {
	Average float64 `json:"average" bson:"average"`
	Count   int     `json:"count" bson:"count"`
}

// Direct reports whether this lawyer authenticates with its own credentials
// rather than through a linked shared-role user
func (l *Lawyer) Direct() bool {
	return l.UserID == nil
}
