package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chat room lifecycle statuses
const (
	ChatPending   = "pending"
	ChatAccepted  = "accepted"
	ChatDeclined  = "declined"
	ChatCompleted = "completed"
)

// Message senders
const (
	SenderUser   = "user"
	SenderLawyer = "lawyer"
	SenderSystem = "system"
)

// ChatRoom holds the structure for the chatrooms collection in mongo.
// At most one room exists per (user, lawyer) pair; the room exclusively
// owns its message log.
type ChatRoom struct {
	ID             primitive.ObjectID  `json:"_id" bson:"_id,omitempty"`
	UserID         primitive.ObjectID  `json:"userId" bson:"userId"`
	LawyerID       primitive.ObjectID  `json:"lawyerId" bson:"lawyerId"`
	IsChatUnlocked bool                `json:"isChatUnlocked" bson:"isChatUnlocked"`
	Status         string              `json:"status" bson:"status"`
	PaymentStatus  string              `json:"paymentStatus" bson:"paymentStatus"`
	AppointmentID  *primitive.ObjectID `json:"appointmentId,omitempty" bson:"appointmentId,omitempty"`
	Messages       []Message           `json:"messages" bson:"messages"`
	LastActivity   time.Time           `json:"lastActivity" bson:"lastActivity"`
	CreatedAt      time.Time           `json:"createdAt" bson:"createdAt"`
}

// Message is one entry in a chat room's append-only log. Array position is
// chronological order; IsRead only ever flips false to true, and only for
// messages whose sender is not the reader.
type Message struct {
	Sender    string    `json:"sender" bson:"sender"`
	Text      string    `json:"text" bson:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	IsRead    bool      `json:"isRead" bson:"isRead"`
}
