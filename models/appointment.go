package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Appointment lifecycle statuses
const (
	AppointmentPending     = "pending"
	AppointmentConfirmed   = "confirmed"
	AppointmentCompleted   = "completed"
	AppointmentCancelled   = "cancelled"
	AppointmentRescheduled = "rescheduled"
)

// DefaultAppointmentDuration is the session length in minutes when none is given
const DefaultAppointmentDuration = 60

// Appointment holds the structure for the appointments collection in mongo.
// Date is "2006-01-02" and Time is "15:04"; both are wall-clock values in
// the configured appointment timezone.
type Appointment struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	UserID    primitive.ObjectID `json:"userId" bson:"userId"`
	LawyerID  primitive.ObjectID `json:"lawyerId" bson:"lawyerId"`
	Date      string             `json:"date" bson:"date"`
	Time      string             `json:"time" bson:"time"`
	Duration  int                `json:"duration" bson:"duration"`
	Notes     string             `json:"notes" bson:"notes"`
	Amount    int64              `json:"amount" bson:"amount"`
	IsPaid    bool               `json:"isPaid" bson:"isPaid"`
	Status    string             `json:"status" bson:"status"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// Qualifying reports whether the appointment authorizes chat access for
// its (client, lawyer) pair: paid, and confirmed or completed
func (a *Appointment) Qualifying() bool {
	if a == nil {
		return false
	}
	return a.IsPaid && (a.Status == AppointmentConfirmed || a.Status == AppointmentCompleted)
}

// Window returns the [start, end) activity interval of the appointment in
// the given location. The zero time is returned for unparseable values.
func (a *Appointment) Window(loc *time.Location) (time.Time, time.Time) {
	start, err := time.ParseInLocation("2006-01-02 15:04", a.Date+" "+a.Time, loc)
	if err != nil {
		return time.Time{}, time.Time{}
	}
	dur := a.Duration
	if dur <= 0 {
		dur = DefaultAppointmentDuration
	}
	return start, start.Add(time.Duration(dur) * time.Minute)
}
