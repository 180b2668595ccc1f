package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Transaction types
const (
	TransactionDeposit = "deposit"
	TransactionPayment = "payment"
	TransactionRefund  = "refund"
)

// Transaction statuses
const (
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionFailed    = "failed"
	TransactionRefunded  = "refunded"
)

// Transaction holds the structure for the transactions collection in mongo.
// Entries are append-only; a refund is a new record, never a mutation of
// the original payment.
type Transaction struct {
	ID            primitive.ObjectID  `json:"_id" bson:"_id,omitempty"`
	UserID        primitive.ObjectID  `json:"userId" bson:"userId"`
	RecipientID   *primitive.ObjectID `json:"recipientId,omitempty" bson:"recipientId,omitempty"`
	Type          string              `json:"type" bson:"type"`
	Amount        int64               `json:"amount" bson:"amount"`
	Status        string              `json:"status" bson:"status"`
	Description   string              `json:"description" bson:"description"`
	AppointmentID *primitive.ObjectID `json:"appointmentId,omitempty" bson:"appointmentId,omitempty"`
	CreatedAt     time.Time           `json:"createdAt" bson:"createdAt"`
}
