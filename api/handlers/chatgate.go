package handlers

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/legaleagle/legal-eagle-api/api"
	"github.com/legaleagle/legal-eagle-api/databases"
	"github.com/legaleagle/legal-eagle-api/models"
)

// Gate error codes surfaced to clients alongside the 403
const (
	CodeNoAppointment    = "NO_APPOINTMENT"
	CodeAppointmentEnded = "APPOINTMENT_ENDED"
	CodeChatLocked       = "CHAT_LOCKED"
)

// roomRoleAdmin marks an administrator acting on a room it is not a party of
const roomRoleAdmin = "admin"

// ChatGate decides, for a (client, lawyer) pair, whether a room may be
// created, viewed or written to. Appointment activity is recomputed from
// the wall clock on every check, never cached.
type ChatGate struct {
	ADB databases.AppointmentDatabase
	LDB databases.LawyerDatabase
	Loc *time.Location
}

// RoomRole resolves which side of the room the principal is: the room's
// client, the room's lawyer (direct id match or shared-role profile
// back-reference), an administrator, or nobody
func (g *ChatGate) RoomRole(p api.Principal, room *models.ChatRoom) string {
	if p.IsAdmin() {
		return roomRoleAdmin
	}
	if p.Kind == api.KindSharedUser && p.ID == room.UserID {
		return models.SenderUser
	}
	if p.ActsForLawyer(room.LawyerID) {
		return models.SenderLawyer
	}
	return ""
}

// QualifyingAppointment returns the most recent paid confirmed/completed
// appointment for the pair, or nil when none exists
func (g *ChatGate) QualifyingAppointment(ctx context.Context, userID, lawyerID primitive.ObjectID) (*models.Appointment, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "time", Value: -1}})
	appt, err := g.ADB.FindOne(ctx, bson.M{
		"userId":   userID,
		"lawyerId": lawyerID,
		"isPaid":   true,
		"status":   bson.M{"$in": []string{models.AppointmentConfirmed, models.AppointmentCompleted}},
	}, opts)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return appt, nil
}

// Active reports whether now still falls before the end of the
// appointment's activity window
func (g *ChatGate) Active(appt *models.Appointment) bool {
	if appt == nil {
		return false
	}
	loc := g.Loc
	if loc == nil {
		loc = time.Local
	}
	start, end := appt.Window(loc)
	if start.IsZero() {
		return false
	}
	return time.Now().In(loc).Before(end)
}

// AuthorizeView gates read access to a room's history for the given room
// role. Lawyers and admins always read; clients need a qualifying
// appointment, active or not (history stays readable after the window).
func (g *ChatGate) AuthorizeView(ctx context.Context, role string, room *models.ChatRoom) (string, error) {
	if role != models.SenderUser {
		return "", nil
	}
	appt, err := g.QualifyingAppointment(ctx, room.UserID, room.LawyerID)
	if err != nil {
		return "", err
	}
	if appt == nil {
		return CodeNoAppointment, nil
	}
	return "", nil
}

// AuthorizeSend gates message sends. The room must be unlocked for
// everyone; client senders additionally need a currently active qualifying
// appointment. Lawyer senders are never time-gated.
func (g *ChatGate) AuthorizeSend(ctx context.Context, role string, room *models.ChatRoom) (string, error) {
	if !room.IsChatUnlocked {
		return CodeChatLocked, nil
	}
	if role != models.SenderUser {
		return "", nil
	}
	appt, err := g.QualifyingAppointment(ctx, room.UserID, room.LawyerID)
	if err != nil {
		return "", err
	}
	if appt == nil {
		return CodeNoAppointment, nil
	}
	if !g.Active(appt) {
		return CodeAppointmentEnded, nil
	}
	return "", nil
}
