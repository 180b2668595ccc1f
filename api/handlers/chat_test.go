package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/legaleagle/legal-eagle-api/api"
	"github.com/legaleagle/legal-eagle-api/api/handlers"
	"github.com/legaleagle/legal-eagle-api/databases/mocks"
	"github.com/legaleagle/legal-eagle-api/models"
)

func lawyerRequest(method, target string, body []byte, lawyerID primitive.ObjectID) *http.Request {
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	p := api.Principal{Kind: api.KindDirectLawyer, ID: lawyerID, Role: models.RoleLawyer, LawyerID: &lawyerID}
	return req.WithContext(api.ContextWithPrincipal(req.Context(), p))
}

// qualifyingAppointment builds a paid confirmed appointment whose window
// starts at the given offset from now
func qualifyingAppointment(userID, lawyerID primitive.ObjectID, startOffset time.Duration) *models.Appointment {
	start := time.Now().Add(startOffset)
	return &models.Appointment{
		ID:       primitive.NewObjectID(),
		UserID:   userID,
		LawyerID: lawyerID,
		Date:     start.Format("2006-01-02"),
		Time:     start.Format("15:04"),
		Duration: 60,
		IsPaid:   true,
		Status:   models.AppointmentConfirmed,
	}
}

func TestChat_CreateChatRoomHandler_NoAppointment(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()

	ldb := &mocks.LawyerDatabase{}
	ldb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Lawyer{ID: lawyerID}, nil)

	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)

	adb := &mocks.AppointmentDatabase{}
	adb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)

	c := handlers.Chat{DB: cdb, LDB: ldb, Gate: &handlers.ChatGate{ADB: adb, LDB: ldb}}

	body, _ := json.Marshal(map[string]interface{}{"lawyerId": lawyerID.Hex()})
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.CreateChatRoomHandler).ServeHTTP(rr, clientRequest("POST", "/api/v1/chat", body, userID))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "NO_APPOINTMENT")
	cdb.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestChat_CreateChatRoomHandler_AutoUnlocksWhenPaid(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()

	ldb := &mocks.LawyerDatabase{}
	ldb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Lawyer{ID: lawyerID}, nil)

	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)
	cdb.On("InsertOne", mock.Anything, mock.Anything).Return(nil, nil)

	adb := &mocks.AppointmentDatabase{}
	adb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).Return(qualifyingAppointment(userID, lawyerID, -10*time.Minute), nil)

	c := handlers.Chat{DB: cdb, LDB: ldb, Gate: &handlers.ChatGate{ADB: adb, LDB: ldb}}

	body, _ := json.Marshal(map[string]interface{}{"lawyerId": lawyerID.Hex()})
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.CreateChatRoomHandler).ServeHTTP(rr, clientRequest("POST", "/api/v1/chat", body, userID))

	assert.Equal(t, http.StatusCreated, rr.Code)

	var room models.ChatRoom
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &room))
	assert.True(t, room.IsChatUnlocked)
	assert.Equal(t, models.ChatAccepted, room.Status)
	assert.Equal(t, "paid", room.PaymentStatus)
	assert.NotNil(t, room.AppointmentID)
}

func TestChat_CreateChatRoomHandler_ForceCreationStaysPending(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()

	ldb := &mocks.LawyerDatabase{}
	ldb.On("FindOne", mock.Anything, mock.Anything).Return(&models.Lawyer{ID: lawyerID}, nil)

	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)
	cdb.On("InsertOne", mock.Anything, mock.Anything).Return(nil, nil)

	adb := &mocks.AppointmentDatabase{}
	adb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)

	c := handlers.Chat{DB: cdb, LDB: ldb, Gate: &handlers.ChatGate{ADB: adb, LDB: ldb}}

	body, _ := json.Marshal(map[string]interface{}{"lawyerId": lawyerID.Hex(), "forceCreation": true})
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.CreateChatRoomHandler).ServeHTTP(rr, clientRequest("POST", "/api/v1/chat", body, userID))

	assert.Equal(t, http.StatusCreated, rr.Code)

	var room models.ChatRoom
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &room))
	assert.False(t, room.IsChatUnlocked)
	assert.Equal(t, models.ChatPending, room.Status)
	assert.Equal(t, "unpaid", room.PaymentStatus)
}

func TestChat_SendMessageHandler_Locked(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()
	roomID := primitive.NewObjectID()

	room := &models.ChatRoom{ID: roomID, UserID: userID, LawyerID: lawyerID, Status: models.ChatPending}

	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(room, nil)

	c := handlers.Chat{DB: cdb, Gate: &handlers.ChatGate{ADB: &mocks.AppointmentDatabase{}}}

	body, _ := json.Marshal(map[string]string{"text": "hello"})
	req := clientRequest("POST", "/api/v1/chat/"+roomID.Hex()+"/message", body, userID)
	req = mux.SetURLVars(req, map[string]string{"chat_id": roomID.Hex()})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.SendMessageHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.JSONEq(t, `{"error": "chat is locked"}`, rr.Body.String())
	cdb.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestChat_SendMessageHandler_AppointmentEnded(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()
	roomID := primitive.NewObjectID()

	room := &models.ChatRoom{ID: roomID, UserID: userID, LawyerID: lawyerID, IsChatUnlocked: true, Status: models.ChatAccepted}

	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(room, nil)

	adb := &mocks.AppointmentDatabase{}
	// window started two hours ago with a 60 minute duration, so it is over
	adb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).Return(qualifyingAppointment(userID, lawyerID, -2*time.Hour), nil)

	c := handlers.Chat{DB: cdb, Gate: &handlers.ChatGate{ADB: adb}}

	body, _ := json.Marshal(map[string]string{"text": "are you still there?"})
	req := clientRequest("POST", "/api/v1/chat/"+roomID.Hex()+"/message", body, userID)
	req = mux.SetURLVars(req, map[string]string{"chat_id": roomID.Hex()})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.SendMessageHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "APPOINTMENT_ENDED")
	assert.Contains(t, rr.Body.String(), `"appointmentEnded": true`)
	cdb.AssertNotCalled(t, "UpdateOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestChat_SendMessageHandler_ClientWithActiveAppointment(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()
	roomID := primitive.NewObjectID()

	room := &models.ChatRoom{ID: roomID, UserID: userID, LawyerID: lawyerID, IsChatUnlocked: true, Status: models.ChatAccepted}

	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(room, nil)
	cdb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(&mongo.UpdateResult{ModifiedCount: 1}, nil)

	adb := &mocks.AppointmentDatabase{}
	adb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).Return(qualifyingAppointment(userID, lawyerID, -10*time.Minute), nil)

	c := handlers.Chat{DB: cdb, Gate: &handlers.ChatGate{ADB: adb}}

	body, _ := json.Marshal(map[string]string{"text": "hello counsel"})
	req := clientRequest("POST", "/api/v1/chat/"+roomID.Hex()+"/message", body, userID)
	req = mux.SetURLVars(req, map[string]string{"chat_id": roomID.Hex()})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.SendMessageHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)

	var msg models.Message
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &msg))
	assert.Equal(t, models.SenderUser, msg.Sender)
	assert.Equal(t, "hello counsel", msg.Text)
	assert.False(t, msg.IsRead)
}

func TestChat_SendMessageHandler_LawyerNeverTimeGated(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()
	roomID := primitive.NewObjectID()

	room := &models.ChatRoom{ID: roomID, UserID: userID, LawyerID: lawyerID, IsChatUnlocked: true, Status: models.ChatAccepted}

	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(room, nil)
	cdb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Return(&mongo.UpdateResult{ModifiedCount: 1}, nil)

	adb := &mocks.AppointmentDatabase{}

	c := handlers.Chat{DB: cdb, Gate: &handlers.ChatGate{ADB: adb}}

	body, _ := json.Marshal(map[string]string{"text": "following up on your case"})
	req := lawyerRequest("POST", "/api/v1/chat/"+roomID.Hex()+"/message", body, lawyerID)
	req = mux.SetURLVars(req, map[string]string{"chat_id": roomID.Hex()})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.SendMessageHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)

	var msg models.Message
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &msg))
	assert.Equal(t, models.SenderLawyer, msg.Sender)
	// no appointment lookup for the lawyer side
	adb.AssertNotCalled(t, "FindOne", mock.Anything, mock.Anything, mock.Anything)
}

func TestChat_ChatRequestHandler_Decline(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()
	roomID := primitive.NewObjectID()

	room := &models.ChatRoom{ID: roomID, UserID: userID, LawyerID: lawyerID, Status: models.ChatPending}

	var update bson.M
	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(room, nil)
	cdb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		update = args.Get(2).(bson.M)
	}).Return(&mongo.UpdateResult{ModifiedCount: 1}, nil)

	c := handlers.Chat{DB: cdb, Gate: &handlers.ChatGate{ADB: &mocks.AppointmentDatabase{}}}

	body, _ := json.Marshal(map[string]string{"action": "decline"})
	req := lawyerRequest("POST", "/api/v1/chat/"+roomID.Hex()+"/request", body, lawyerID)
	req = mux.SetURLVars(req, map[string]string{"chat_id": roomID.Hex()})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ChatRequestHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), models.ChatDeclined)

	// the decision is recorded as an already-read system message
	set := update["$set"].(bson.M)
	assert.Equal(t, models.ChatDeclined, set["status"])
	assert.Equal(t, false, set["isChatUnlocked"])
	sysMsg := update["$push"].(bson.M)["messages"].(models.Message)
	assert.Equal(t, models.SenderSystem, sysMsg.Sender)
	assert.True(t, sysMsg.IsRead)
}

func TestChat_ChatRequestHandler_AlreadyResolved(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()
	roomID := primitive.NewObjectID()

	room := &models.ChatRoom{ID: roomID, UserID: userID, LawyerID: lawyerID, Status: models.ChatAccepted, IsChatUnlocked: true}

	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(room, nil)

	c := handlers.Chat{DB: cdb, Gate: &handlers.ChatGate{ADB: &mocks.AppointmentDatabase{}}}

	body, _ := json.Marshal(map[string]string{"action": "accept"})
	req := lawyerRequest("POST", "/api/v1/chat/"+roomID.Hex()+"/request", body, lawyerID)
	req = mux.SetURLVars(req, map[string]string{"chat_id": roomID.Hex()})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ChatRequestHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error": "chat request already resolved"}`, rr.Body.String())
}

func TestChat_ChatRequestHandler_ClientCannotResolve(t *testing.T) {
	userID := primitive.NewObjectID()
	roomID := primitive.NewObjectID()

	room := &models.ChatRoom{ID: roomID, UserID: userID, LawyerID: primitive.NewObjectID(), Status: models.ChatPending}

	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(room, nil)

	c := handlers.Chat{DB: cdb, Gate: &handlers.ChatGate{ADB: &mocks.AppointmentDatabase{}}}

	body, _ := json.Marshal(map[string]string{"action": "accept"})
	req := clientRequest("POST", "/api/v1/chat/"+roomID.Hex()+"/request", body, userID)
	req = mux.SetURLVars(req, map[string]string{"chat_id": roomID.Hex()})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ChatRequestHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestChat_MarkReadHandler_FlipsCounterpartyMessages(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()
	roomID := primitive.NewObjectID()

	room := &models.ChatRoom{ID: roomID, UserID: userID, LawyerID: lawyerID, IsChatUnlocked: true, Status: models.ChatAccepted}

	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(room, nil)
	// the read-flag update carries array filter options
	cdb.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&mongo.UpdateResult{ModifiedCount: 1}, nil)

	c := handlers.Chat{DB: cdb, Gate: &handlers.ChatGate{ADB: &mocks.AppointmentDatabase{}}}

	req := clientRequest("PATCH", "/api/v1/chat/"+roomID.Hex()+"/read", nil, userID)
	req = mux.SetURLVars(req, map[string]string{"chat_id": roomID.Hex()})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.MarkReadHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success": true}`, rr.Body.String())
}

func TestChat_ChatStatusHandler_EndedAppointmentBlocksSending(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()
	roomID := primitive.NewObjectID()

	room := &models.ChatRoom{ID: roomID, UserID: userID, LawyerID: lawyerID, IsChatUnlocked: true, Status: models.ChatAccepted, PaymentStatus: "paid"}

	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(room, nil)

	adb := &mocks.AppointmentDatabase{}
	adb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).Return(qualifyingAppointment(userID, lawyerID, -2*time.Hour), nil)

	c := handlers.Chat{DB: cdb, Gate: &handlers.ChatGate{ADB: adb}}

	req := clientRequest("GET", "/api/v1/chat/"+roomID.Hex()+"/status", nil, userID)
	req = mux.SetURLVars(req, map[string]string{"chat_id": roomID.Hex()})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ChatStatusHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.ChatStatusResponse
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.IsChatUnlocked)
	assert.False(t, resp.CanSend)
	assert.True(t, resp.AppointmentEnded)
}

func TestChat_ChatHistoryHandler_StrangerRejected(t *testing.T) {
	roomID := primitive.NewObjectID()
	room := &models.ChatRoom{ID: roomID, UserID: primitive.NewObjectID(), LawyerID: primitive.NewObjectID()}

	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(room, nil)

	c := handlers.Chat{DB: cdb, Gate: &handlers.ChatGate{ADB: &mocks.AppointmentDatabase{}}}

	req := clientRequest("GET", "/api/v1/chat/"+roomID.Hex(), nil, primitive.NewObjectID())
	req = mux.SetURLVars(req, map[string]string{"chat_id": roomID.Hex()})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ChatHistoryHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestChat_ChatHistoryHandler_ReadableAfterWindow(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()
	roomID := primitive.NewObjectID()

	room := &models.ChatRoom{
		ID: roomID, UserID: userID, LawyerID: lawyerID,
		IsChatUnlocked: true, Status: models.ChatAccepted,
		Messages: []models.Message{{Sender: models.SenderLawyer, Text: "any updates?"}},
	}

	cdb := &mocks.ChatRoomDatabase{}
	cdb.On("FindOne", mock.Anything, mock.Anything).Return(room, nil)

	adb := &mocks.AppointmentDatabase{}
	adb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).Return(qualifyingAppointment(userID, lawyerID, -2*time.Hour), nil)

	c := handlers.Chat{DB: cdb, Gate: &handlers.ChatGate{ADB: adb}}

	req := clientRequest("GET", "/api/v1/chat/"+roomID.Hex(), nil, userID)
	req = mux.SetURLVars(req, map[string]string{"chat_id": roomID.Hex()})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ChatHistoryHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.ChatRoom
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Messages, 1)
}
