package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"github.com/legaleagle/legal-eagle-api/api"
	"github.com/legaleagle/legal-eagle-api/api/handlers"
)

func adminHandler(t *testing.T) handlers.Admin {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("op-sekrit"), bcrypt.MinCost)
	assert.NoError(t, err)
	return handlers.Admin{
		Email:        "ops@example.com",
		PasswordHash: string(hash),
		JWTSecret:    "test-signing-secret",
	}
}

func TestAdmin_AdminLoginHandler_Success(t *testing.T) {
	a := adminHandler(t)

	body, _ := json.Marshal(map[string]string{"email": "ops@example.com", "password": "op-sekrit"})
	req, _ := http.NewRequest("POST", "/api/v1/auth/admin/login", bytes.NewReader(body))

	rr := httptest.NewRecorder()
	http.HandlerFunc(a.AdminLoginHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])

	// the issued token is accepted by the middleware's verifier
	email, err := api.VerifyAdminToken(a.JWTSecret, resp["token"])
	assert.NoError(t, err)
	assert.Equal(t, "ops@example.com", email)
}

func TestAdmin_AdminLoginHandler_WrongPassword(t *testing.T) {
	a := adminHandler(t)

	body, _ := json.Marshal(map[string]string{"email": "ops@example.com", "password": "guess"})
	req, _ := http.NewRequest("POST", "/api/v1/auth/admin/login", bytes.NewReader(body))

	rr := httptest.NewRecorder()
	http.HandlerFunc(a.AdminLoginHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error": "invalid credentials"}`, rr.Body.String())
}

func TestAdmin_AdminLoginHandler_WrongEmail(t *testing.T) {
	a := adminHandler(t)

	body, _ := json.Marshal(map[string]string{"email": "intruder@example.com", "password": "op-sekrit"})
	req, _ := http.NewRequest("POST", "/api/v1/auth/admin/login", bytes.NewReader(body))

	rr := httptest.NewRecorder()
	http.HandlerFunc(a.AdminLoginHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdmin_AdminLoginHandler_NotConfigured(t *testing.T) {
	a := handlers.Admin{}

	body, _ := json.Marshal(map[string]string{"email": "ops@example.com", "password": "op-sekrit"})
	req, _ := http.NewRequest("POST", "/api/v1/auth/admin/login", bytes.NewReader(body))

	rr := httptest.NewRecorder()
	http.HandlerFunc(a.AdminLoginHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
