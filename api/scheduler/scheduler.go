package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/legaleagle/legal-eagle-api/databases"
	"github.com/legaleagle/legal-eagle-api/models"
)

// Scheduler handles the periodic background jobs: expired session cleanup
// and appointment completion sweeps
type Scheduler struct {
	cron *cron.Cron
	UDB  databases.UserDatabase
	LDB  databases.LawyerDatabase
	ADB  databases.AppointmentDatabase
	loc  *time.Location
}

// New creates a new scheduler instance
func New(uDB databases.UserDatabase, lDB databases.LawyerDatabase, aDB databases.AppointmentDatabase, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
		UDB:  uDB,
		LDB:  lDB,
		ADB:  aDB,
		loc:  loc,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// Purge expired sessions from both principal stores hourly
	_, err := s.cron.AddFunc("0 * * * *", s.purgeExpiredSessions)
	if err != nil {
		zap.S().Errorw("failed to register session purge job", "error", err)
	}

	// Sweep paid confirmed appointments past their window every 10 minutes
	_, err = s.cron.AddFunc("*/10 * * * *", s.completeElapsedAppointments)
	if err != nil {
		zap.S().Errorw("failed to register appointment completion job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("background scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("background scheduler stopped")
}

// purgeExpiredSessions removes session tokens older than the TTL from every
// user and lawyer document. Expired tokens already fail authentication; this
// keeps the embedded arrays from growing without bound.
func (s *Scheduler) purgeExpiredSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-models.SessionTTL)
	filter := bson.M{"sessions.createdAt": bson.M{"$lt": primitive.NewDateTimeFromTime(cutoff)}}
	update := bson.M{"$pull": bson.M{"sessions": bson.M{"createdAt": bson.M{"$lt": primitive.NewDateTimeFromTime(cutoff)}}}}

	res, err := s.UDB.UpdateMany(ctx, filter, update)
	if err != nil {
		zap.S().Errorw("failed to purge expired user sessions", "error", err)
	} else if res.ModifiedCount > 0 {
		zap.S().Infow("purged expired user sessions", "documents", res.ModifiedCount)
	}

	res, err = s.LDB.UpdateMany(ctx, filter, update)
	if err != nil {
		zap.S().Errorw("failed to purge expired lawyer sessions", "error", err)
	} else if res.ModifiedCount > 0 {
		zap.S().Infow("purged expired lawyer sessions", "documents", res.ModifiedCount)
	}
}

// completeElapsedAppointments marks paid confirmed appointments whose window
// has fully passed as completed. The window end depends on the stored
// date/time strings, so candidates are filtered by date and checked in Go.
func (s *Scheduler) completeElapsedAppointments() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	now := time.Now().In(s.loc)
	today := now.Format("2006-01-02")

	candidates, err := s.ADB.Find(ctx, bson.M{
		"status": models.AppointmentConfirmed,
		"isPaid": true,
		"date":   bson.M{"$lte": today},
	})
	if err != nil {
		zap.S().Errorw("failed to find appointments for completion sweep", "error", err)
		return
	}

	completed := 0
	for _, appt := range candidates {
		_, end := appt.Window(s.loc)
		if end.IsZero() || now.Before(end) {
			continue
		}
		_, err := s.ADB.UpdateOne(ctx,
			bson.M{"_id": appt.ID, "status": models.AppointmentConfirmed},
			bson.M{"$set": bson.M{"status": models.AppointmentCompleted}},
		)
		if err != nil {
			zap.S().Errorw("failed to complete appointment", "error", err, "appointmentId", appt.ID.Hex())
			continue
		}
		completed++
	}
	if completed > 0 {
		zap.S().Infow("appointment completion sweep finished", "completed", completed)
	}
}
