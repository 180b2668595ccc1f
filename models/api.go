package models

// HealthCheckResponse returns the health check response, exciting
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}

// AuthResponse is the body returned by register and login for both
// principal kinds
type AuthResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// ChatStatusResponse reports the gate's view of a room for the caller
type ChatStatusResponse struct {
	Status           string `json:"status"`
	IsChatUnlocked   bool   `json:"isChatUnlocked"`
	PaymentStatus    string `json:"paymentStatus"`
	CanSend          bool   `json:"canSend"`
	AppointmentEnded bool   `json:"appointmentEnded"`
}

// WalletBalanceResponse is the body returned by the wallet balance routes
type WalletBalanceResponse struct {
	Balance int64 `json:"balance"`
}

// TransactionListResponse is the paginated transaction history body
type TransactionListResponse struct {
	Transactions []Transaction `json:"transactions"`
	TotalPages   int64         `json:"totalPages"`
	Page         int64         `json:"page"`
}
