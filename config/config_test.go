package config_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/legaleagle/legal-eagle-api/config"
)

func TestNew_ReadsEnvironment(t *testing.T) {
	os.Setenv("DB_URI", "mongodb://localhost:27017")
	os.Setenv("DB_NAME", "legal-eagle")
	os.Setenv("APPOINTMENT_TZ", "Asia/Kolkata")
	defer func() {
		os.Unsetenv("DB_URI")
		os.Unsetenv("DB_NAME")
		os.Unsetenv("APPOINTMENT_TZ")
	}()

	c := config.New()
	assert.Equal(t, "mongodb://localhost:27017", c.URL)
	assert.Equal(t, "legal-eagle", c.DatabaseName)
	assert.Equal(t, "Asia/Kolkata", c.AppointmentTZ)
}

func TestErrorStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	config.ErrorStatus("failed to decode request", http.StatusBadRequest, rr, errors.New("eof"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error": "failed to decode request"}`, rr.Body.String())
}

func TestErrorStatusCode(t *testing.T) {
	rr := httptest.NewRecorder()
	config.ErrorStatusCode("chat is locked", "CHAT_LOCKED", http.StatusForbidden, rr, errors.New("locked"))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.JSONEq(t, `{"error": "chat is locked", "code": "CHAT_LOCKED"}`, rr.Body.String())
}

func TestErrorStatusCode_AppointmentEndedFlag(t *testing.T) {
	rr := httptest.NewRecorder()
	config.ErrorStatusCode("your appointment has ended", "APPOINTMENT_ENDED", http.StatusForbidden, rr, errors.New("window elapsed"))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.JSONEq(t, `{"error": "your appointment has ended", "code": "APPOINTMENT_ENDED", "appointmentEnded": true}`, rr.Body.String())
}
