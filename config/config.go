package config

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
)

// Config holds the project config values
type Config struct {
	URL               string
	DatabaseName      string
	BaseURL           string
	Port              string
	AppointmentTZ     string
	AdminEmail        string
	AdminPasswordHash string
	AdminJWTSecret    string
}

// New sets up all config related services
func New() *Config {

	//setup zap logger and replace default logger
	logger := zap.NewExample()
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	return &Config{
		URL:               os.Getenv("DB_URI"),
		DatabaseName:      os.Getenv("DB_NAME"),
		BaseURL:           os.Getenv("BASE_URL"),
		Port:              os.Getenv("PORT"),
		AppointmentTZ:     os.Getenv("APPOINTMENT_TZ"),
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		AdminJWTSecret:    os.Getenv("ADMIN_JWT_SECRET"),
	}

}

// ErrorStatus is a useful function that will log, write http headers and body for a
// given message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().With(err).Error(message)
	w.WriteHeader(httpStatusCode)
	w.Write([]byte(fmt.Sprintf(`{"error": "%s"}`, message)))
}

// ErrorStatusCode writes an error body that carries a machine-readable code
// alongside the message, used by the chat gating responses
func ErrorStatusCode(message, code string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().With(err).Error(message)
	w.WriteHeader(httpStatusCode)
	if code == "APPOINTMENT_ENDED" {
		w.Write([]byte(fmt.Sprintf(`{"error": "%s", "code": "%s", "appointmentEnded": true}`, message, code)))
		return
	}
	w.Write([]byte(fmt.Sprintf(`{"error": "%s", "code": "%s"}`, message, code)))
}
