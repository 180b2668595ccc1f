package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/legaleagle/legal-eagle-api/api"
	"github.com/legaleagle/legal-eagle-api/config"
	"github.com/legaleagle/legal-eagle-api/databases"
	"github.com/legaleagle/legal-eagle-api/models"
)

// bcryptCost matches the cost the rest of the platform hashes with
const bcryptCost = 12

// Auth holds the principal stores for the register/login/logout routes
type Auth struct {
	DB  databases.UserDatabase
	LDB databases.LawyerDatabase
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterHandler creates a shared-role user and issues its first session token
func (a Auth) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var req registerRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		config.ErrorStatus("email, password and name are required", http.StatusBadRequest, w, fmt.Errorf("missing required fields"))
		return
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleLawyer {
		config.ErrorStatus("invalid role", http.StatusBadRequest, w, fmt.Errorf("role must be user or lawyer"))
		return
	}

	email := strings.ToLower(req.Email)
	existing, _ := a.DB.FindOne(r.Context(), bson.M{"email": email})
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
	user := models.User{
		ID:            primitive.NewObjectID(),
		Email:         email,
		Password:      string(hashedPassword),
		Name:          req.Name,
		WalletBalance: 0,
		Role:          role,
		Sessions:      []models.Session{{Token: token, CreatedAt: now}},
		CreatedAt:     now,
	}
	_, err = a.DB.InsertOne(r.Context(), user)
	if err != nil {
		config.ErrorStatus("failed to create user", http.StatusInternalServerError, w, err)
		return
	}

	api.CacheToken(r, token, api.SessionInfo(api.KindSharedUser, user.Email, user.ID.Hex(), user.Role, ""))
	zap.S().Infow("user registered", "userId", user.ID.Hex(), "role", user.Role)

	w.WriteHeader(http.StatusCreated)
	b, _ := json.Marshal(models.AuthResponse{Token: token, UserID: user.ID.Hex(), Role: user.Role})
	w.Write(b)
}

// LoginHandler verifies credentials and appends a new session. Prior
// sessions stay valid so multiple devices can be logged in at once.
func (a Auth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var req loginRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	user, err := a.DB.FindOne(r.Context(), bson.M{"email": strings.ToLower(req.Email)})
	if err != nil {
		config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, err)
		return
	}
	err = bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password))
	if err != nil {
		config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, err)
		return
	}

	token := uuid.New().String()
	_, err = a.DB.UpdateOne(r.Context(),
		bson.M{"_id": user.ID},
		bson.M{"$push": bson.M{"sessions": models.Session{Token: token, CreatedAt: time.Now()}}},
	)
	if err != nil {
		config.ErrorStatus("failed to create session", http.StatusInternalServerError, w, err)
		return
	}

	// shared-role lawyers carry their profile back-reference, so a cache
	// hit resolves the same principal the store lookup would
	lawyerID := ""
	if user.Role == models.RoleLawyer {
		if profile, perr := a.LDB.FindOne(r.Context(), bson.M{"userId": user.ID}); perr == nil {
			lawyerID = profile.ID.Hex()
		}
	}
	api.CacheToken(r, token, api.SessionInfo(api.KindSharedUser, user.Email, user.ID.Hex(), user.Role, lawyerID))
	zap.S().Debugw("user logged in", "userId", user.ID.Hex())

	b, _ := json.Marshal(models.AuthResponse{Token: token, UserID: user.ID.Hex(), Role: user.Role})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// LogoutHandler removes the presented session from whichever principal
// store owns it and revokes the cached token
func (a Auth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	token := api.BearerToken(r)
	if token == "" {
		config.ErrorStatus("no token provided", http.StatusBadRequest, w, fmt.Errorf("missing bearer token"))
		return
	}
	p, ok := api.PrincipalFromContext(r.Context())
	if !ok {
		config.ErrorStatus("unauthorized", http.StatusUnauthorized, w, fmt.Errorf("no principal"))
		return
	}

	pull := bson.M{"$pull": bson.M{"sessions": bson.M{"token": token}}}
	if p.Kind == api.KindDirectLawyer {
		_, err := a.LDB.UpdateOne(r.Context(), bson.M{"_id": p.ID}, pull)
		if err != nil {
			config.ErrorStatus("failed to remove session", http.StatusInternalServerError, w, err)
			return
		}
	} else {
		_, err := a.DB.UpdateOne(r.Context(), bson.M{"_id": p.ID}, pull)
		if err != nil {
			config.ErrorStatus("failed to remove session", http.StatusInternalServerError, w, err)
			return
		}
	}

	api.ForgetToken(r, token)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message": "logged out successfully"}`))
}
