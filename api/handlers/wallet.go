package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/legaleagle/legal-eagle-api/api"
	"github.com/legaleagle/legal-eagle-api/config"
	"github.com/legaleagle/legal-eagle-api/databases"
	"github.com/legaleagle/legal-eagle-api/models"
)

// defaultTransactionPageSize bounds a transaction history page
const defaultTransactionPageSize = 20

// Wallet exported for testing purposes
type Wallet struct {
	UDB databases.UserDatabase
	TDB databases.TransactionDatabase
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

// AddMoneyHandler credits the authenticated client's wallet and appends a
// deposit entry to the ledger
func (wa Wallet) AddMoneyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p, ok := api.PrincipalFromContext(r.Context())
	if !ok || p.Kind != api.KindSharedUser {
		config.ErrorStatus("only clients hold wallets", http.StatusForbidden, w, fmt.Errorf("wrong principal kind"))
		return
	}

	var req depositRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("invalid amount", http.StatusBadRequest, w, err)
		return
	}
	if req.Amount <= 0 {
		config.ErrorStatus("invalid amount", http.StatusBadRequest, w, fmt.Errorf("amount must be positive, got %d", req.Amount))
		return
	}

	res, err := wa.UDB.UpdateOne(r.Context(), bson.M{"_id": p.ID}, bson.M{"$inc": bson.M{"walletBalance": req.Amount}})
	if err != nil {
		config.ErrorStatus("failed to credit wallet", http.StatusInternalServerError, w, err)
		return
	}
	if res.MatchedCount == 0 {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, fmt.Errorf("no user for principal"))
		return
	}

	_, err = wa.TDB.InsertOne(r.Context(), models.Transaction{
		ID:          primitive.NewObjectID(),
		UserID:      p.ID,
		Type:        models.TransactionDeposit,
		Amount:      req.Amount,
		Status:      models.TransactionCompleted,
		Description: "Wallet deposit",
		CreatedAt:   time.Now(),
	})
	if err != nil {
		// reverse the credit rather than leave a balance change with no
		// ledger record
		if _, cerr := wa.UDB.UpdateOne(r.Context(), bson.M{"_id": p.ID}, bson.M{"$inc": bson.M{"walletBalance": -req.Amount}}); cerr != nil {
			zap.S().Errorw("failed to reverse deposit after ledger failure", "userId", p.ID.Hex(), "error", cerr)
		}
		config.ErrorStatus("failed to record deposit", http.StatusInternalServerError, w, err)
		return
	}

	user, err := wa.UDB.FindOne(r.Context(), bson.M{"_id": p.ID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}

	b, _ := json.Marshal(models.WalletBalanceResponse{Balance: user.WalletBalance})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// BalanceHandler returns a wallet balance given a userID
func (wa Wallet) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	zap.S().Debugf("user_id: %v", userID)

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	user, err := wa.UDB.FindOne(r.Context(), bson.M{"_id": uID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}

	b, _ := json.Marshal(models.WalletBalanceResponse{Balance: user.WalletBalance})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// TransactionsHandler returns one reverse-chronological page of a user's ledger
func (wa Wallet) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 || limit > 100 {
		limit = defaultTransactionPageSize
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	items, totalPages, err := wa.TDB.FindPage(ctx, bson.M{"userId": uID}, page, limit)
	if err != nil {
		config.ErrorStatus("failed to get transactions", http.StatusInternalServerError, w, err)
		return
	}
	if len(items) == 0 {
		items = []models.Transaction{}
	}

	b, err := json.Marshal(models.TransactionListResponse{
		Transactions: items,
		TotalPages:   totalPages,
		Page:         int64(page),
	})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
