package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/legaleagle/legal-eagle-api/api"
	"github.com/legaleagle/legal-eagle-api/api/scheduler"
	"github.com/legaleagle/legal-eagle-api/config"
	"github.com/legaleagle/legal-eagle-api/databases"
	"github.com/legaleagle/legal-eagle-api/models"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	Scheduler *scheduler.Scheduler
	Hub       *ChatHub
	dbHelper  databases.DatabaseHelper
	loc       *time.Location
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	// setup go-guardian for middleware
	m := api.MiddlewareDB{
		UDB:       databases.NewUserDatabase(a.dbHelper),
		LDB:       databases.NewLawyerDatabase(a.dbHelper),
		JWTSecret: a.Config.AdminJWTSecret,
	}
	m.SetupGoGuardian()

	r := mux.NewRouter()

	if a.Hub == nil {
		a.Hub = NewChatHub()
	}
	gate := &ChatGate{
		ADB: databases.NewAppointmentDatabase(a.dbHelper),
		LDB: databases.NewLawyerDatabase(a.dbHelper),
		Loc: a.loc,
	}

	auth := Auth{DB: databases.NewUserDatabase(a.dbHelper), LDB: databases.NewLawyerDatabase(a.dbHelper)}
	l := Lawyer{DB: databases.NewLawyerDatabase(a.dbHelper), UDB: databases.NewUserDatabase(a.dbHelper)}
	appt := Appointment{
		DB:  databases.NewAppointmentDatabase(a.dbHelper),
		UDB: databases.NewUserDatabase(a.dbHelper),
		LDB: databases.NewLawyerDatabase(a.dbHelper),
		TDB: databases.NewTransactionDatabase(a.dbHelper),
		Hub: a.Hub,
	}
	wallet := Wallet{UDB: databases.NewUserDatabase(a.dbHelper), TDB: databases.NewTransactionDatabase(a.dbHelper)}
	chat := Chat{
		DB:   databases.NewChatRoomDatabase(a.dbHelper),
		LDB:  databases.NewLawyerDatabase(a.dbHelper),
		Gate: gate,
		Hub:  a.Hub,
	}
	chatWS := ChatWS{Auth: m, Chat: chat}
	admin := Admin{Email: a.Config.AdminEmail, PasswordHash: a.Config.AdminPasswordHash, JWTSecret: a.Config.AdminJWTSecret}
	cloudinaryHandler := CloudinaryHandler{}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	// realtime chat socket, authenticates in-band
	r.HandleFunc("/ws/chat", chatWS.ServeChat)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	apiCreate.Use(api.TimeoutMiddleware(30 * time.Second))

	apiCreate.Handle("/auth/register", http.HandlerFunc(auth.RegisterHandler)).Methods("POST")
	apiCreate.Handle("/auth/login", http.HandlerFunc(auth.LoginHandler)).Methods("POST")
	apiCreate.Handle("/auth/logout", api.Middleware(http.HandlerFunc(auth.LogoutHandler))).Methods("POST")
	apiCreate.Handle("/auth/admin/login", http.HandlerFunc(admin.AdminLoginHandler)).Methods("POST")

	apiCreate.Handle("/lawyer/register", http.HandlerFunc(l.LawyerRegisterHandler)).Methods("POST")
	apiCreate.Handle("/lawyer/login", http.HandlerFunc(l.LawyerLoginHandler)).Methods("POST")
	apiCreate.Handle("/lawyer/profile", api.Middleware(http.HandlerFunc(l.CreateLawyerProfileHandler))).Methods("POST")
	apiCreate.Handle("/lawyer/user/{user_id}", api.Middleware(http.HandlerFunc(l.LawyerByUserIDHandler))).Methods("GET")
	apiCreate.Handle("/lawyer/{lawyer_id}", api.Middleware(http.HandlerFunc(l.LawyerByIDHandler))).Methods("GET")
	apiCreate.Handle("/lawyer/{lawyer_id}", api.Middleware(http.HandlerFunc(l.UpdateLawyerHandler))).Methods("PATCH")
	apiCreate.Handle("/lawyer/{lawyer_id}/availability", api.Middleware(http.HandlerFunc(l.UpdateAvailabilityHandler))).Methods("PUT")
	apiCreate.Handle("/lawyers", api.Middleware(http.HandlerFunc(l.LawyersHandler))).Methods("GET")

	apiCreate.Handle("/appointment", api.Middleware(http.HandlerFunc(appt.BookAppointmentHandler))).Methods("POST")
	apiCreate.Handle("/appointment/{appointment_id}", api.Middleware(http.HandlerFunc(appt.AppointmentByIDHandler))).Methods("GET")
	apiCreate.Handle("/appointment/{appointment_id}", api.Middleware(http.HandlerFunc(appt.UpdateAppointmentHandler))).Methods("PATCH")
	apiCreate.Handle("/appointments/lawyer/{lawyer_id}", api.Middleware(http.HandlerFunc(appt.AppointmentsByLawyerIDHandler))).Methods("GET")
	apiCreate.Handle("/appointments/user/{user_id}", api.Middleware(http.HandlerFunc(appt.AppointmentsByUserIDHandler))).Methods("GET")

	apiCreate.Handle("/wallet/add-money", api.Middleware(http.HandlerFunc(wallet.AddMoneyHandler))).Methods("POST")
	apiCreate.Handle("/wallet/{user_id}/balance", api.Middleware(http.HandlerFunc(wallet.BalanceHandler))).Methods("GET")
	apiCreate.Handle("/wallet/{user_id}/transactions", api.Middleware(http.HandlerFunc(wallet.TransactionsHandler))).Methods("GET")

	apiCreate.Handle("/chat", api.Middleware(http.HandlerFunc(chat.CreateChatRoomHandler))).Methods("POST")
	apiCreate.Handle("/chat/user/{user_id}", api.Middleware(http.HandlerFunc(chat.ChatsByUserIDHandler))).Methods("GET")
	apiCreate.Handle("/chat/lawyer/{lawyer_id}", api.Middleware(http.HandlerFunc(chat.ChatsByLawyerIDHandler))).Methods("GET")
	apiCreate.Handle("/chat/{chat_id}", api.Middleware(http.HandlerFunc(chat.ChatHistoryHandler))).Methods("GET")
	apiCreate.Handle("/chat/{chat_id}/status", api.Middleware(http.HandlerFunc(chat.ChatStatusHandler))).Methods("GET")
	apiCreate.Handle("/chat/{chat_id}/message", api.Middleware(http.HandlerFunc(chat.SendMessageHandler))).Methods("POST")
	apiCreate.Handle("/chat/{chat_id}/read", api.Middleware(http.HandlerFunc(chat.MarkReadHandler))).Methods("PATCH")
	apiCreate.Handle("/chat/{chat_id}/request", api.Middleware(http.HandlerFunc(chat.ChatRequestHandler))).Methods("POST")
	apiCreate.Handle("/chat/{chat_id}/unlock", api.Middleware(http.HandlerFunc(chat.UnlockChatHandler))).Methods("POST")

	apiCreate.Handle("/generate-signature", api.Middleware(http.HandlerFunc(cloudinaryHandler.GenerateSignature))).Methods("POST")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("legal-eagle-api has connected to the database")

	a.loc = time.Local
	if a.Config.AppointmentTZ != "" {
		loc, lerr := time.LoadLocation(a.Config.AppointmentTZ)
		if lerr != nil {
			zap.S().Warnw("invalid APPOINTMENT_TZ, falling back to local time", "tz", a.Config.AppointmentTZ)
		} else {
			a.loc = loc
		}
	}

	a.Scheduler = scheduler.New(
		databases.NewUserDatabase(a.dbHelper),
		databases.NewLawyerDatabase(a.dbHelper),
		databases.NewAppointmentDatabase(a.dbHelper),
		a.loc,
	)
	a.Scheduler.Start()

	// initialize api router
	a.initializeRoutes()
	return nil

}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
