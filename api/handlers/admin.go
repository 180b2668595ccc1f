package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/legaleagle/legal-eagle-api/config"
)

// adminTokenTTL bounds how long an operator token stays usable
const adminTokenTTL = 24 * time.Hour

// Admin exported for testing purposes
type Admin struct {
	Email        string
	PasswordHash string
	JWTSecret    string
}

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AdminLoginHandler checks the operator credentials configured in the
// environment and issues a signed JWT the auth middleware accepts in place
// of a session token
func (a Admin) AdminLoginHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if a.Email == "" || a.PasswordHash == "" || a.JWTSecret == "" {
		config.ErrorStatus("admin login is not configured", http.StatusServiceUnavailable, w, fmt.Errorf("missing admin credentials"))
		return
	}

	var req adminLoginRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	if req.Email != a.Email {
		config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, fmt.Errorf("unknown admin email"))
		return
	}
	err = bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(req.Password))
	if err != nil {
		config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, err)
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  a.Email,
		"role": "admin",
		"iat":  now.Unix(),
		"exp":  now.Add(adminTokenTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(a.JWTSecret))
	if err != nil {
		config.ErrorStatus("failed to sign admin token", http.StatusInternalServerError, w, err)
		return
	}

	zap.S().Infow("admin logged in", "email", a.Email)
	b, _ := json.Marshal(map[string]string{"token": signed})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
