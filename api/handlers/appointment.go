package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/legaleagle/legal-eagle-api/api"
	"github.com/legaleagle/legal-eagle-api/config"
	"github.com/legaleagle/legal-eagle-api/databases"
	"github.com/legaleagle/legal-eagle-api/models"
	templates "github.com/legaleagle/legal-eagle-api/templates/html"
)

// Appointment exported for testing purposes
type Appointment struct {
	DB  databases.AppointmentDatabase
	UDB databases.UserDatabase
	LDB databases.LawyerDatabase
	TDB databases.TransactionDatabase
	Hub *ChatHub
}

type bookAppointmentRequest struct {
	LawyerID string `json:"lawyerId"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Duration int    `json:"duration"`
	Notes    string `json:"notes"`
}

// BookAppointmentHandler books a paid consultation slot. The wallet debit,
// the appointment insert and the payment ledger entry run as a
// compensating-action saga: any failed step rolls the earlier ones back so
// the client is never charged for an unrecorded slot.
func (a Appointment) BookAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p, ok := api.PrincipalFromContext(r.Context())
	if !ok || p.Kind != api.KindSharedUser {
		config.ErrorStatus("only clients can book appointments", http.StatusForbidden, w, fmt.Errorf("wrong principal kind"))
		return
	}

	var req bookAppointmentRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if _, err = time.Parse("2006-01-02", req.Date); err != nil {
		config.ErrorStatus("invalid date, expected YYYY-MM-DD", http.StatusBadRequest, w, err)
		return
	}
	if _, err = time.Parse("15:04", req.Time); err != nil {
		config.ErrorStatus("invalid time, expected HH:MM", http.StatusBadRequest, w, err)
		return
	}

	lID, err := primitive.ObjectIDFromHex(req.LawyerID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	user, err := a.UDB.FindOne(r.Context(), bson.M{"_id": p.ID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}
	lawyer, err := a.LDB.FindOne(r.Context(), bson.M{"_id": lID})
	if err != nil {
		config.ErrorStatus("failed to get lawyer by ID", http.StatusNotFound, w, err)
		return
	}

	// booking is idempotent per (client, lawyer, calendar day): an existing
	// qualifying appointment for the day is returned without a second debit
	existing, _ := a.DB.FindOne(r.Context(), bson.M{
		"userId":   user.ID,
		"lawyerId": lawyer.ID,
		"date":     req.Date,
		"isPaid":   true,
		"status":   bson.M{"$in": []string{models.AppointmentConfirmed, models.AppointmentCompleted}},
	})
	if existing != nil {
		zap.S().Debugw("duplicate booking returned existing appointment", "appointmentId", existing.ID.Hex())
		b, _ := json.Marshal(existing)
		w.WriteHeader(http.StatusOK)
		w.Write(b)
		return
	}

	if user.WalletBalance < lawyer.PricePerSession {
		config.ErrorStatus("insufficient wallet balance", http.StatusBadRequest, w, fmt.Errorf("balance %d below price %d", user.WalletBalance, lawyer.PricePerSession))
		return
	}

	duration := req.Duration
	if duration <= 0 {
		duration = models.DefaultAppointmentDuration
	}
	// the debit runs first so no paid appointment is ever visible before
	// the charge lands; conditional on the balance still covering the
	// price, so a concurrent booking cannot drive the wallet negative
	amount := lawyer.PricePerSession
	res, err := a.UDB.UpdateOne(r.Context(),
		bson.M{"_id": user.ID, "walletBalance": bson.M{"$gte": amount}},
		bson.M{"$inc": bson.M{"walletBalance": -amount}},
	)
	if err != nil {
		config.ErrorStatus("failed to debit wallet", http.StatusInternalServerError, w, err)
		return
	}
	if res.ModifiedCount == 0 {
		config.ErrorStatus("insufficient wallet balance", http.StatusBadRequest, w, fmt.Errorf("concurrent debit emptied wallet"))
		return
	}

	appt := models.Appointment{
		ID:        primitive.NewObjectID(),
		UserID:    user.ID,
		LawyerID:  lawyer.ID,
		Date:      req.Date,
		Time:      req.Time,
		Duration:  duration,
		Notes:     req.Notes,
		Amount:    amount,
		IsPaid:    true,
		Status:    models.AppointmentConfirmed,
		CreatedAt: time.Now(),
	}
	_, err = a.DB.InsertOne(r.Context(), appt)
	if err != nil {
		if _, cerr := a.UDB.UpdateOne(r.Context(), bson.M{"_id": user.ID}, bson.M{"$inc": bson.M{"walletBalance": amount}}); cerr != nil {
			zap.S().Errorw("failed to re-credit wallet after appointment insert failure", "userId", user.ID.Hex(), "error", cerr)
		}
		config.ErrorStatus("failed to create appointment", http.StatusInternalServerError, w, err)
		return
	}

	apptID := appt.ID
	recipient := lawyer.ID
	_, err = a.TDB.InsertOne(r.Context(), models.Transaction{
		ID:            primitive.NewObjectID(),
		UserID:        user.ID,
		RecipientID:   &recipient,
		Type:          models.TransactionPayment,
		Amount:        appt.Amount,
		Status:        models.TransactionCompleted,
		Description:   fmt.Sprintf("Consultation with %s on %s %s", lawyer.Name, appt.Date, appt.Time),
		AppointmentID: &apptID,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		// roll the whole booking back rather than leave a debit with no ledger entry
		if _, cerr := a.UDB.UpdateOne(r.Context(), bson.M{"_id": user.ID}, bson.M{"$inc": bson.M{"walletBalance": appt.Amount}}); cerr != nil {
			zap.S().Errorw("failed to re-credit wallet after ledger failure", "userId", user.ID.Hex(), "error", cerr)
		}
		if derr := a.DB.DeleteOne(r.Context(), bson.M{"_id": appt.ID}); derr != nil {
			zap.S().Errorw("failed to compensate appointment after ledger failure", "appointmentId", appt.ID.Hex(), "error", derr)
		}
		config.ErrorStatus("failed to record payment", http.StatusInternalServerError, w, err)
		return
	}

	zap.S().Infow("appointment booked",
		"appointmentId", appt.ID.Hex(),
		"userId", user.ID.Hex(),
		"lawyerId", lawyer.ID.Hex(),
		"amount", appt.Amount)

	go sendBookingConfirmation(user.Email, user.Name, lawyer.Name, appt.Date, appt.Time)
	a.Hub.SendToLawyer(lawyer.ID.Hex(), "newAppointment", appt)

	b, _ := json.Marshal(appt)
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// AppointmentByIDHandler returns an appointment given its id
func (a Appointment) AppointmentByIDHandler(w http.ResponseWriter, r *http.Request) {
	appointmentID := mux.Vars(r)["appointment_id"]

	aID, err := primitive.ObjectIDFromHex(appointmentID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := a.DB.FindOne(r.Context(), bson.M{"_id": aID})
	if err != nil {
		config.ErrorStatus("failed to get appointment by ID", http.StatusNotFound, w, err)
		return
	}

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// AppointmentsByLawyerIDHandler returns all appointments for a lawyer
func (a Appointment) AppointmentsByLawyerIDHandler(w http.ResponseWriter, r *http.Request) {
	lawyerID := mux.Vars(r)["lawyer_id"]

	lID, err := primitive.ObjectIDFromHex(lawyerID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	dbResp, err := a.DB.Find(ctx, bson.M{"lawyerId": lID})
	if err != nil {
		config.ErrorStatus("failed to get appointments by lawyer ID", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.Appointment{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// AppointmentsByUserIDHandler returns all appointments for a client
func (a Appointment) AppointmentsByUserIDHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	dbResp, err := a.DB.Find(ctx, bson.M{"userId": uID})
	if err != nil {
		config.ErrorStatus("failed to get appointments by user ID", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.Appointment{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

type updateAppointmentRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
	Date   string `json:"date"`
	Time   string `json:"time"`
}

var validAppointmentStatuses = map[string]bool{
	models.AppointmentPending:     true,
	models.AppointmentConfirmed:   true,
	models.AppointmentCompleted:   true,
	models.AppointmentCancelled:   true,
	models.AppointmentRescheduled: true,
}

// UpdateAppointmentHandler updates an appointment's status and details.
// Cancelling a paid appointment refunds the client's wallet and appends a
// refund entry to the ledger. The charged amount itself never changes.
func (a Appointment) UpdateAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	appointmentID := mux.Vars(r)["appointment_id"]

	aID, err := primitive.ObjectIDFromHex(appointmentID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	appt, err := a.DB.FindOne(r.Context(), bson.M{"_id": aID})
	if err != nil {
		config.ErrorStatus("failed to get appointment by ID", http.StatusNotFound, w, err)
		return
	}

	p, ok := api.PrincipalFromContext(r.Context())
	authorized := ok && (p.IsAdmin() ||
		(p.Kind == api.KindSharedUser && p.ID == appt.UserID) ||
		p.ActsForLawyer(appt.LawyerID))
	if !authorized {
		config.ErrorStatus("not authorized to update this appointment", http.StatusForbidden, w, fmt.Errorf("wrong principal"))
		return
	}

	var req updateAppointmentRequest
	err = json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	set := bson.M{}
	if req.Status != "" {
		if !validAppointmentStatuses[req.Status] {
			config.ErrorStatus("invalid appointment status", http.StatusBadRequest, w, fmt.Errorf("status %q", req.Status))
			return
		}
		set["status"] = req.Status
	}
	if req.Notes != "" {
		set["notes"] = req.Notes
	}
	if req.Date != "" {
		if _, err = time.Parse("2006-01-02", req.Date); err != nil {
			config.ErrorStatus("invalid date, expected YYYY-MM-DD", http.StatusBadRequest, w, err)
			return
		}
		set["date"] = req.Date
	}
	if req.Time != "" {
		if _, err = time.Parse("15:04", req.Time); err != nil {
			config.ErrorStatus("invalid time, expected HH:MM", http.StatusBadRequest, w, err)
			return
		}
		set["time"] = req.Time
	}
	if len(set) == 0 {
		config.ErrorStatus("no updatable fields provided", http.StatusBadRequest, w, fmt.Errorf("empty update"))
		return
	}

	if req.Status == models.AppointmentCancelled && appt.IsPaid && appt.Status != models.AppointmentCancelled {
		_, err = a.UDB.UpdateOne(r.Context(), bson.M{"_id": appt.UserID}, bson.M{"$inc": bson.M{"walletBalance": appt.Amount}})
		if err != nil {
			config.ErrorStatus("failed to refund wallet", http.StatusInternalServerError, w, err)
			return
		}
		refID := appt.ID
		lawyerID := appt.LawyerID
		_, err = a.TDB.InsertOne(r.Context(), models.Transaction{
			ID:            primitive.NewObjectID(),
			UserID:        appt.UserID,
			RecipientID:   &lawyerID,
			Type:          models.TransactionRefund,
			Amount:        appt.Amount,
			Status:        models.TransactionCompleted,
			Description:   fmt.Sprintf("Refund for cancelled appointment on %s %s", appt.Date, appt.Time),
			AppointmentID: &refID,
			CreatedAt:     time.Now(),
		})
		if err != nil {
			// reverse the credit rather than leave a balance change with no
			// ledger record; the appointment keeps its previous status
			if _, cerr := a.UDB.UpdateOne(r.Context(), bson.M{"_id": appt.UserID}, bson.M{"$inc": bson.M{"walletBalance": -appt.Amount}}); cerr != nil {
				zap.S().Errorw("failed to reverse refund after ledger failure", "appointmentId", appt.ID.Hex(), "error", cerr)
			}
			config.ErrorStatus("failed to record refund", http.StatusInternalServerError, w, err)
			return
		}
	}

	_, err = a.DB.UpdateOne(r.Context(), bson.M{"_id": aID}, bson.M{"$set": set})
	if err != nil {
		config.ErrorStatus("failed to update appointment", http.StatusInternalServerError, w, err)
		return
	}

	updated, err := a.DB.FindOne(r.Context(), bson.M{"_id": aID})
	if err != nil {
		config.ErrorStatus("failed to get appointment by ID", http.StatusNotFound, w, err)
		return
	}
	b, _ := json.Marshal(updated)
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// sendBookingConfirmation emails the client after a successful booking.
// Best-effort: a missing key or a sendgrid error only logs.
func sendBookingConfirmation(toEmail, toName, lawyerName, date, timeStr string) {
	apiKey := os.Getenv("SENDGRID_API_KEY")
	if apiKey == "" {
		return
	}
	from := mail.NewEmail("Legal Eagle", os.Getenv("SENDGRID_FROM_EMAIL"))
	to := mail.NewEmail(toName, toEmail)
	subject := "Your consultation is booked"
	plainText := fmt.Sprintf("Hi %s,\n\nYour consultation with %s is confirmed for %s at %s.\n\nThe Legal Eagle team", toName, lawyerName, date, timeStr)
	message := mail.NewSingleEmail(from, subject, to, plainText, templates.RenderGenericEmail(subject, plainText))

	client := sendgrid.NewSendClient(apiKey)
	response, err := client.Send(message)
	if err != nil {
		zap.S().Errorw("failed to send booking confirmation", "to", toEmail, "error", err)
		return
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", toEmail)
	}
}
