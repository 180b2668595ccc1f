package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/legaleagle/legal-eagle-api/api"
	"github.com/legaleagle/legal-eagle-api/config"
	"github.com/legaleagle/legal-eagle-api/databases"
	"github.com/legaleagle/legal-eagle-api/models"
)

// Lawyer exported for testing purposes
type Lawyer struct {
	DB  databases.LawyerDatabase
	UDB databases.UserDatabase
}

type lawyerRegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	Specialization  string `json:"specialization"`
	Experience      int    `json:"experience"`
	PricePerSession int64  `json:"pricePerSession"`
}

// LawyerRegisterHandler creates a direct lawyer: a credentialed principal
// with its own password and sessions, not linked to any user
func (l Lawyer) LawyerRegisterHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var req lawyerRegisterRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		config.ErrorStatus("email, password and name are required", http.StatusBadRequest, w, fmt.Errorf("missing required fields"))
		return
	}

	email := strings.ToLower(req.Email)
	existing, _ := l.DB.FindOne(r.Context(), bson.M{"email": email})
	if existing != nil {
		config.ErrorStatus("email already exists", http.StatusBadRequest, w, fmt.Errorf("duplicate email"))
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		config.ErrorStatus("failed to hash password", http.StatusInternalServerError, w, err)
		return
	}

	now := time.Now()
	token := uuid.New().String()
	lawyer := models.Lawyer{
		ID:              primitive.NewObjectID(),
		Name:            req.Name,
		Email:           email,
		Specialization:  req.Specialization,
		Experience:      req.Experience,
		PricePerSession: req.PricePerSession,
		Availability:    []models.AvailabilitySlot{},
		Password:        string(hashedPassword),
		Sessions:        []models.Session{{Token: token, CreatedAt: now}},
		CreatedAt:       now,
	}
	_, err = l.DB.InsertOne(r.Context(), lawyer)
	if err != nil {
		config.ErrorStatus("failed to create lawyer", http.StatusInternalServerError, w, err)
		return
	}

	api.CacheToken(r, token, api.SessionInfo(api.KindDirectLawyer, lawyer.Email, lawyer.ID.Hex(), models.RoleLawyer, lawyer.ID.Hex()))
	zap.S().Infow("direct lawyer registered", "lawyerId", lawyer.ID.Hex())

	w.WriteHeader(http.StatusCreated)
	b, _ := json.Marshal(models.AuthResponse{Token: token, UserID: lawyer.ID.Hex(), Role: models.RoleLawyer})
	w.Write(b)
}

// LawyerLoginHandler authenticates a direct lawyer and appends a session
func (l Lawyer) LawyerLoginHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var req loginRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	lawyer, err := l.DB.FindOne(r.Context(), bson.M{"email": strings.ToLower(req.Email)})
	if err != nil || lawyer.Password == "" {
		config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, fmt.Errorf("no direct lawyer for email"))
		return
	}
	err = bcrypt.CompareHashAndPassword([]byte(lawyer.Password), []byte(req.Password))
	if err != nil {
		config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, err)
		return
	}

	token := uuid.New().String()
	_, err = l.DB.UpdateOne(r.Context(),
		bson.M{"_id": lawyer.ID},
		bson.M{"$push": bson.M{"sessions": models.Session{Token: token, CreatedAt: time.Now()}}},
	)
	if err != nil {
		config.ErrorStatus("failed to create session", http.StatusInternalServerError, w, err)
		return
	}

	api.CacheToken(r, token, api.SessionInfo(api.KindDirectLawyer, lawyer.Email, lawyer.ID.Hex(), models.RoleLawyer, lawyer.ID.Hex()))

	b, _ := json.Marshal(models.AuthResponse{Token: token, UserID: lawyer.ID.Hex(), Role: models.RoleLawyer})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// LawyersHandler lists lawyer profiles, optionally filtered by specialization
func (l Lawyer) LawyersHandler(w http.ResponseWriter, r *http.Request) {
	filter := bson.M{}
	if spec := r.URL.Query().Get("specialization"); spec != "" {
		filter["specialization"] = spec
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	dbResp, err := l.DB.Find(ctx, filter)
	if err != nil {
		config.ErrorStatus("failed to get lawyers", http.StatusInternalServerError, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.Lawyer{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

type createProfileRequest struct {
	Name            string `json:"name"`
	Specialization  string `json:"specialization"`
	Experience      int    `json:"experience"`
	PricePerSession int64  `json:"pricePerSession"`
}

// CreateLawyerProfileHandler creates a profile linked to the authenticated
// shared-role user. At most one profile may exist per linked user.
func (l Lawyer) CreateLawyerProfileHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := api.PrincipalFromContext(r.Context())
	if !ok || p.Kind != api.KindSharedUser {
		config.ErrorStatus("not authorized", http.StatusForbidden, w, fmt.Errorf("linked profiles are created by shared-role users"))
		return
	}

	var req createProfileRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	existing, _ := l.DB.FindOne(r.Context(), bson.M{"userId": p.ID})
	if existing != nil {
		config.ErrorStatus("lawyer profile already exists for this user", http.StatusBadRequest, w, fmt.Errorf("duplicate profile"))
		return
	}

	userID := p.ID
	lawyer := models.Lawyer{
		ID:              primitive.NewObjectID(),
		UserID:          &userID,
		Name:            req.Name,
		Email:           p.Email,
		Specialization:  req.Specialization,
		Experience:      req.Experience,
		PricePerSession: req.PricePerSession,
		Availability:    []models.AvailabilitySlot{},
		CreatedAt:       time.Now(),
	}
	_, err = l.DB.InsertOne(r.Context(), lawyer)
	if err != nil {
		config.ErrorStatus("failed to create lawyer profile", http.StatusInternalServerError, w, err)
		return
	}

	// the linked user now acts as a lawyer
	_, err = l.UDB.UpdateOne(r.Context(), bson.M{"_id": p.ID}, bson.M{"$set": bson.M{"role": models.RoleLawyer}})
	if err != nil {
		zap.S().Errorw("failed to promote user role to lawyer", "userId", p.ID.Hex(), "error", err)
	}
	// refresh the cached session so the new back-reference takes effect
	// before the cache entry expires
	if token := api.BearerToken(r); token != "" {
		api.CacheToken(r, token, api.SessionInfo(api.KindSharedUser, p.Email, p.ID.Hex(), models.RoleLawyer, lawyer.ID.Hex()))
	}

	b, _ := json.Marshal(lawyer)
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// LawyerByIDHandler returns a lawyer profile given its id
func (l Lawyer) LawyerByIDHandler(w http.ResponseWriter, r *http.Request) {
	lawyerID := mux.Vars(r)["lawyer_id"]

	zap.S().Debugf("lawyer_id: %v", lawyerID)

	lID, err := primitive.ObjectIDFromHex(lawyerID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := l.DB.FindOne(r.Context(), bson.M{"_id": lID})
	if err != nil {
		config.ErrorStatus("failed to get lawyer by ID", http.StatusNotFound, w, err)
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

// LawyerByUserIDHandler returns the profile linked to a shared-role user
func (l Lawyer) LawyerByUserIDHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	dbResp, err := l.DB.FindOne(r.Context(), bson.M{"userId": uID})
	if err != nil {
		config.ErrorStatus("failed to get lawyer by user ID", http.StatusNotFound, w, err)
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

type updateLawyerRequest struct {
	Name            *string `json:"name"`
	Specialization  *string `json:"specialization"`
	Experience      *int    `json:"experience"`
	PricePerSession *int64  `json:"pricePerSession"`
}

// UpdateLawyerHandler updates profile fields. Only the lawyer itself (via
// either principal kind) or an administrator may update a profile.
func (l Lawyer) UpdateLawyerHandler(w http.ResponseWriter, r *http.Request) {
	lawyerID := mux.Vars(r)["lawyer_id"]

	lID, err := primitive.ObjectIDFromHex(lawyerID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	p, ok := api.PrincipalFromContext(r.Context())
	if !ok || (!p.IsAdmin() && !p.ActsForLawyer(lID)) {
		config.ErrorStatus("not authorized to update this profile", http.StatusForbidden, w, fmt.Errorf("wrong principal"))
		return
	}

	var req updateLawyerRequest
	err = json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	set := bson.M{}
	if req.Name != nil {
		set["name"] = *req.Name
	}
	if req.Specialization != nil {
		set["specialization"] = *req.Specialization
	}
	if req.Experience != nil {
		set["experience"] = *req.Experience
	}
	if req.PricePerSession != nil {
		set["pricePerSession"] = *req.PricePerSession
	}
	if len(set) == 0 {
		config.ErrorStatus("no updatable fields provided", http.StatusBadRequest, w, fmt.Errorf("empty update"))
		return
	}

	_, err = l.DB.UpdateOne(r.Context(), bson.M{"_id": lID}, bson.M{"$set": set})
	if err != nil {
		config.ErrorStatus("failed to update lawyer", http.StatusInternalServerError, w, err)
		return
	}

	dbResp, err := l.DB.FindOne(r.Context(), bson.M{"_id": lID})
	if err != nil {
		config.ErrorStatus("failed to get lawyer by ID", http.StatusNotFound, w, err)
		return
	}
	b, _ := json.Marshal(dbResp)
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

type updateAvailabilityRequest struct {
	Availability []models.AvailabilitySlot `json:"availability"`
}

// UpdateAvailabilityHandler replaces the lawyer's ordered availability list
func (l Lawyer) UpdateAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	lawyerID := mux.Vars(r)["lawyer_id"]

	lID, err := primitive.ObjectIDFromHex(lawyerID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	p, ok := api.PrincipalFromContext(r.Context())
	if !ok || (!p.IsAdmin() && !p.ActsForLawyer(lID)) {
		config.ErrorStatus("not authorized to update this profile", http.StatusForbidden, w, fmt.Errorf("wrong principal"))
		return
	}

	var req updateAvailabilityRequest
	err = json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if req.Availability == nil {
		req.Availability = []models.AvailabilitySlot{}
	}

	_, err = l.DB.UpdateOne(r.Context(), bson.M{"_id": lID}, bson.M{"$set": bson.M{"availability": req.Availability}})
	if err != nil {
		config.ErrorStatus("failed to update availability", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"success": true}`))
}
