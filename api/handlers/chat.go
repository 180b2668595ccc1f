package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/legaleagle/legal-eagle-api/api"
	"github.com/legaleagle/legal-eagle-api/config"
	"github.com/legaleagle/legal-eagle-api/databases"
	"github.com/legaleagle/legal-eagle-api/models"
)

// Chat exported for testing purposes
type Chat struct {
	DB   databases.ChatRoomDatabase
	LDB  databases.LawyerDatabase
	Gate *ChatGate
	Hub  *ChatHub
}

type createChatRequest struct {
	LawyerID      string `json:"lawyerId"`
	ForceCreation bool   `json:"forceCreation"`
}

// receiveMessagePayload is the realtime mirror of a persisted message
type receiveMessagePayload struct {
	ChatID    string    `json:"chatId"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateChatRoomHandler creates (or returns) the single chat room for a
// (client, lawyer) pair. A new room needs a qualifying appointment unless
// forceCreation; a qualifying appointment at creation time auto-unlocks
// the room, otherwise it waits pending for the lawyer's decision.
func (c Chat) CreateChatRoomHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	p, ok := api.PrincipalFromContext(r.Context())
	if !ok || p.Kind != api.KindSharedUser {
		config.ErrorStatus("only clients can open chat rooms", http.StatusForbidden, w, fmt.Errorf("wrong principal kind"))
		return
	}

	var req createChatRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	lID, err := primitive.ObjectIDFromHex(req.LawyerID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	lawyer, err := c.LDB.FindOne(r.Context(), bson.M{"_id": lID})
	if err != nil {
		config.ErrorStatus("failed to get lawyer by ID", http.StatusNotFound, w, err)
		return
	}

	existing, _ := c.DB.FindOne(r.Context(), bson.M{"userId": p.ID, "lawyerId": lawyer.ID})
	if existing != nil {
		if !req.ForceCreation {
			appt, gerr := c.Gate.QualifyingAppointment(r.Context(), p.ID, lawyer.ID)
			if gerr != nil {
				config.ErrorStatus("failed to verify appointment", http.StatusInternalServerError, w, gerr)
				return
			}
			if appt == nil {
				config.ErrorStatusCode("you must have a paid appointment with this lawyer to access this chat", CodeNoAppointment, http.StatusForbidden, w, fmt.Errorf("no qualifying appointment"))
				return
			}
		}
		b, _ := json.Marshal(existing)
		w.WriteHeader(http.StatusOK)
		w.Write(b)
		return
	}

	appt, err := c.Gate.QualifyingAppointment(r.Context(), p.ID, lawyer.ID)
	if err != nil {
		config.ErrorStatus("failed to verify appointment", http.StatusInternalServerError, w, err)
		return
	}
	if appt == nil && !req.ForceCreation {
		config.ErrorStatusCode("you must have a paid appointment with this lawyer to start a chat", CodeNoAppointment, http.StatusForbidden, w, fmt.Errorf("no qualifying appointment"))
		return
	}

	now := time.Now()
	room := models.ChatRoom{
		ID:            primitive.NewObjectID(),
		UserID:        p.ID,
		LawyerID:      lawyer.ID,
		Status:        models.ChatPending,
		PaymentStatus: "unpaid",
		Messages:      []models.Message{},
		LastActivity:  now,
		CreatedAt:     now,
	}
	if appt != nil {
		// already paid: unlock immediately, no lawyer decision needed
		apptID := appt.ID
		room.Status = models.ChatAccepted
		room.IsChatUnlocked = true
		room.PaymentStatus = "paid"
		room.AppointmentID = &apptID
	}

	_, err = c.DB.InsertOne(r.Context(), room)
	if err != nil {
		config.ErrorStatus("failed to create chat room", http.StatusInternalServerError, w, err)
		return
	}

	zap.S().Infow("chat room created",
		"chatId", room.ID.Hex(),
		"userId", p.ID.Hex(),
		"lawyerId", lawyer.ID.Hex(),
		"unlocked", room.IsChatUnlocked)
	c.Hub.SendToLawyer(lawyer.ID.Hex(), "newChatRequest", room)

	b, _ := json.Marshal(room)
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// roomForRequest loads the room and resolves the caller's side of it
func (c Chat) roomForRequest(w http.ResponseWriter, r *http.Request) (*models.ChatRoom, string, bool) {
	chatID := mux.Vars(r)["chat_id"]

	cID, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return nil, "", false
	}
	room, err := c.DB.FindOne(r.Context(), bson.M{"_id": cID})
	if err != nil {
		config.ErrorStatus("failed to get chat by ID", http.StatusNotFound, w, err)
		return nil, "", false
	}
	p, ok := api.PrincipalFromContext(r.Context())
	if !ok {
		config.ErrorStatus("unauthorized", http.StatusUnauthorized, w, fmt.Errorf("no principal"))
		return nil, "", false
	}
	role := c.Gate.RoomRole(p, room)
	if role == "" {
		config.ErrorStatus("not authorized to access this chat", http.StatusForbidden, w, fmt.Errorf("principal is not a party to the room"))
		return nil, "", false
	}
	return room, role, true
}

// ChatHistoryHandler returns the room with its full message log. History
// stays readable for clients after the appointment window closes, but a
// client with no qualifying appointment at all is turned away.
func (c Chat) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	room, role, ok := c.roomForRequest(w, r)
	if !ok {
		return
	}

	code, err := c.Gate.AuthorizeView(r.Context(), role, room)
	if err != nil {
		config.ErrorStatus("failed to verify appointment", http.StatusInternalServerError, w, err)
		return
	}
	if code != "" {
		config.ErrorStatusCode("you must have a paid appointment with this lawyer to access this chat", code, http.StatusForbidden, w, fmt.Errorf("no qualifying appointment"))
		return
	}

	b, err := json.Marshal(room)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// ChatStatusHandler reports the gate's verdict for the caller without the
// message log, for cheap polling by clients
func (c Chat) ChatStatusHandler(w http.ResponseWriter, r *http.Request) {
	room, role, ok := c.roomForRequest(w, r)
	if !ok {
		return
	}

	resp := models.ChatStatusResponse{
		Status:         room.Status,
		IsChatUnlocked: room.IsChatUnlocked,
		PaymentStatus:  room.PaymentStatus,
		CanSend:        room.IsChatUnlocked,
	}
	if role == models.SenderUser {
		appt, err := c.Gate.QualifyingAppointment(r.Context(), room.UserID, room.LawyerID)
		if err != nil {
			config.ErrorStatus("failed to verify appointment", http.StatusInternalServerError, w, err)
			return
		}
		active := c.Gate.Active(appt)
		resp.CanSend = room.IsChatUnlocked && appt != nil && active
		resp.AppointmentEnded = appt != nil && !active
	}

	b, _ := json.Marshal(resp)
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

// SendMessageHandler appends a message to the room's log after the gate
// clears the sender, then mirrors it to the live channel. Persistence
// always happens before fan-out so live observers see storage order.
func (c Chat) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	room, role, ok := c.roomForRequest(w, r)
	if !ok {
		return
	}
	if role == roomRoleAdmin {
		config.ErrorStatus("administrators cannot send chat messages", http.StatusForbidden, w, fmt.Errorf("admin send"))
		return
	}

	var req sendMessageRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if req.Text == "" {
		config.ErrorStatus("message text is required", http.StatusBadRequest, w, fmt.Errorf("empty text"))
		return
	}

	msg, code, err := c.appendMessage(r.Context(), room, role, req.Text)
	if err != nil {
		config.ErrorStatus("failed to append message", http.StatusInternalServerError, w, err)
		return
	}
	switch code {
	case "":
	case CodeNoAppointment:
		config.ErrorStatusCode("you must have a paid appointment with this lawyer to send messages", code, http.StatusForbidden, w, fmt.Errorf("no qualifying appointment"))
		return
	case CodeAppointmentEnded:
		config.ErrorStatusCode("your appointment has ended. You can view this chat but cannot send new messages", code, http.StatusForbidden, w, fmt.Errorf("appointment window closed"))
		return
	default:
		config.ErrorStatus("chat is locked", http.StatusForbidden, w, fmt.Errorf("room not unlocked"))
		return
	}

	b, _ := json.Marshal(msg)
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// appendMessage runs the send gate, persists the message and then mirrors
// it to the live channel. Returns the gate code when the sender is refused.
func (c Chat) appendMessage(ctx context.Context, room *models.ChatRoom, role, text string) (*models.Message, string, error) {
	code, err := c.Gate.AuthorizeSend(ctx, role, room)
	if err != nil || code != "" {
		return nil, code, err
	}

	msg := models.Message{
		Sender:    role,
		Text:      text,
		Timestamp: time.Now(),
		IsRead:    false,
	}
	_, err = c.DB.UpdateOne(ctx,
		bson.M{"_id": room.ID},
		bson.M{
			"$push": bson.M{"messages": msg},
			"$set":  bson.M{"lastActivity": msg.Timestamp},
		},
	)
	if err != nil {
		return nil, "", err
	}

	payload := receiveMessagePayload{
		ChatID:    room.ID.Hex(),
		Sender:    msg.Sender,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	}
	c.Hub.BroadcastToRoom(room, "receiveMessage", payload)
	if role == models.SenderUser {
		c.Hub.SendToLawyer(room.LawyerID.Hex(), "newMessageNotification", payload)
	} else {
		c.Hub.SendToUser(room.UserID.Hex(), "newMessageNotification", payload)
	}
	return &msg, "", nil
}

// MarkReadHandler flips the unread flag on every message not authored by
// the reader. Flags only ever move false to true.
func (c Chat) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	room, role, ok := c.roomForRequest(w, r)
	if !ok {
		return
	}
	if role == roomRoleAdmin {
		config.ErrorStatus("administrators have no read state", http.StatusForbidden, w, fmt.Errorf("admin read"))
		return
	}

	err := c.markRead(r.Context(), room, role)
	if err != nil {
		config.ErrorStatus("failed to mark messages as read", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"success": true}`))
}

// markRead flips the unread flag on the counterparty's messages and tells
// their live connection
func (c Chat) markRead(ctx context.Context, room *models.ChatRoom, role string) error {
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"m.sender": bson.M{"$ne": role}, "m.isRead": false}},
	})
	_, err := c.DB.UpdateOne(ctx,
		bson.M{"_id": room.ID},
		bson.M{"$set": bson.M{
			"messages.$[m].isRead": true,
			"lastActivity":         time.Now(),
		}},
		opts,
	)
	if err != nil {
		return err
	}

	event := map[string]string{"chatId": room.ID.Hex(), "reader": role}
	if role == models.SenderUser {
		c.Hub.SendToLawyer(room.LawyerID.Hex(), "messagesRead", event)
	} else {
		c.Hub.SendToUser(room.UserID.Hex(), "messagesRead", event)
	}
	return nil
}

type chatRequestAction struct {
	Action string `json:"action"`
}

// ChatRequestHandler lets the room's lawyer accept or decline a pending
// request. The decision is recorded as a system message and pushed to the
// client's live channel.
func (c Chat) ChatRequestHandler(w http.ResponseWriter, r *http.Request) {
	room, role, ok := c.roomForRequest(w, r)
	if !ok {
		return
	}
	if role != models.SenderLawyer {
		config.ErrorStatus("only the lawyer can resolve a chat request", http.StatusForbidden, w, fmt.Errorf("role %q", role))
		return
	}
	if room.Status != models.ChatPending {
		config.ErrorStatus("chat request already resolved", http.StatusBadRequest, w, fmt.Errorf("status %q", room.Status))
		return
	}

	var req chatRequestAction
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	var status string
	var unlocked bool
	var note string
	switch req.Action {
	case "accept":
		status = models.ChatAccepted
		unlocked = true
		note = "Chat request accepted. You can now exchange messages."
	case "decline":
		status = models.ChatDeclined
		unlocked = false
		note = "Chat request declined."
	default:
		config.ErrorStatus("action must be accept or decline", http.StatusBadRequest, w, fmt.Errorf("action %q", req.Action))
		return
	}

	now := time.Now()
	sysMsg := models.Message{
		Sender:    models.SenderSystem,
		Text:      note,
		Timestamp: now,
		IsRead:    true,
	}
	_, err = c.DB.UpdateOne(r.Context(),
		bson.M{"_id": room.ID},
		bson.M{
			"$set":  bson.M{"status": status, "isChatUnlocked": unlocked, "lastActivity": now},
			"$push": bson.M{"messages": sysMsg},
		},
	)
	if err != nil {
		config.ErrorStatus("failed to update chat request", http.StatusInternalServerError, w, err)
		return
	}

	zap.S().Infow("chat request resolved", "chatId", room.ID.Hex(), "status", status)
	c.Hub.SendToUser(room.UserID.Hex(), "chatRequestResolved", map[string]interface{}{
		"chatId":         room.ID.Hex(),
		"status":         status,
		"isChatUnlocked": unlocked,
	})

	b, _ := json.Marshal(map[string]interface{}{"status": status, "isChatUnlocked": unlocked})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UnlockChatHandler forces unlock regardless of room status. Escape hatch
// for the room's lawyer or an operator.
func (c Chat) UnlockChatHandler(w http.ResponseWriter, r *http.Request) {
	room, role, ok := c.roomForRequest(w, r)
	if !ok {
		return
	}
	if role != models.SenderLawyer && role != roomRoleAdmin {
		config.ErrorStatus("not authorized to unlock this chat", http.StatusForbidden, w, fmt.Errorf("role %q", role))
		return
	}

	_, err := c.DB.UpdateOne(r.Context(), bson.M{"_id": room.ID}, bson.M{"$set": bson.M{"isChatUnlocked": true}})
	if err != nil {
		config.ErrorStatus("failed to unlock chat", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"success": true}`))
}

// ChatsByUserIDHandler returns all rooms where the given user is the client
func (c Chat) ChatsByUserIDHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	uID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}
	p, ok := api.PrincipalFromContext(r.Context())
	if !ok || (!p.IsAdmin() && p.ID != uID) {
		config.ErrorStatus("not authorized to list these chats", http.StatusForbidden, w, fmt.Errorf("wrong principal"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	dbResp, err := c.DB.Find(ctx, bson.M{"userId": uID})
	if err != nil {
		config.ErrorStatus("failed to get chats by user ID", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.ChatRoom{}
	}
	b, _ := json.Marshal(dbResp)
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// ChatsByLawyerIDHandler returns all rooms on a lawyer's side
func (c Chat) ChatsByLawyerIDHandler(w http.ResponseWriter, r *http.Request) {
	lawyerID := mux.Vars(r)["lawyer_id"]

	lID, err := primitive.ObjectIDFromHex(lawyerID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}
	p, ok := api.PrincipalFromContext(r.Context())
	if !ok || (!p.IsAdmin() && !p.ActsForLawyer(lID)) {
		config.ErrorStatus("not authorized to list these chats", http.StatusForbidden, w, fmt.Errorf("wrong principal"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()
	dbResp, err := c.DB.Find(ctx, bson.M{"lawyerId": lID})
	if err != nil {
		config.ErrorStatus("failed to get chats by lawyer ID", http.StatusNotFound, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.ChatRoom{}
	}
	b, _ := json.Marshal(dbResp)
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
