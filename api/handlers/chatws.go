package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/legaleagle/legal-eagle-api/api"
	"github.com/legaleagle/legal-eagle-api/models"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatWS serves the realtime chat socket. A connection starts anonymous
// and must authenticate before any other event is honored; gate failures
// are reported as events, never by dropping the connection.
type ChatWS struct {
	Auth api.MiddlewareDB
	Chat Chat
}

// wsEnvelope is the wire frame for every client event
type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsSession is the per-connection state after a successful authenticate.
// The wrapped connection is shared with the hub so its writes and the read
// loop's replies never interleave.
type wsSession struct {
	conn      *ChatConn
	principal api.Principal
}

// ServeChat upgrades the request and runs the event loop until the peer
// goes away
func (s ChatWS) ServeChat(w http.ResponseWriter, r *http.Request) {
	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Errorw("failed to upgrade chat socket", "error", err)
		return
	}
	defer conn.Close()

	sess := &wsSession{conn: NewChatConn(conn)}
	defer s.unregister(sess)

	for {
		var env wsEnvelope
		err := conn.ReadJSON(&env)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.S().Debugw("chat socket closed unexpectedly", "error", err)
			}
			return
		}
		s.dispatch(r, sess, env)
	}
}

func (s ChatWS) dispatch(r *http.Request, sess *wsSession, env wsEnvelope) {
	if env.Event == "authenticate" {
		s.handleAuthenticate(r, sess, env.Data)
		return
	}
	if sess.principal.Kind == "" {
		s.emit(sess, "authError", map[string]string{"message": "authenticate first"})
		return
	}

	switch env.Event {
	case "joinRoom":
		s.handleJoinRoom(r, sess, env.Data)
	case "sendMessage":
		s.handleSendMessage(r, sess, env.Data)
	case "typing":
		s.relayTyping(r, sess, env.Data, "typing")
	case "stopTyping":
		s.relayTyping(r, sess, env.Data, "stopTyping")
	case "markAsRead":
		s.handleMarkAsRead(r, sess, env.Data)
	default:
		s.emit(sess, "error", map[string]string{"message": "unknown event: " + env.Event})
	}
}

func (s ChatWS) emit(sess *wsSession, event string, data interface{}) {
	err := sess.conn.WriteJSON(map[string]interface{}{
		"event": event,
		"data":  data,
	})
	if err != nil {
		zap.S().Debugw("failed to write chat socket event", "event", event, "error", err)
	}
}

type wsAuthenticateData struct {
	Token string `json:"token"`
}

func (s ChatWS) handleAuthenticate(r *http.Request, sess *wsSession, data json.RawMessage) {
	var req wsAuthenticateData
	if err := json.Unmarshal(data, &req); err != nil || req.Token == "" {
		s.emit(sess, "authError", map[string]string{"message": "token is required"})
		return
	}

	p, err := s.Auth.ResolvePrincipal(r.Context(), req.Token)
	if err != nil {
		s.emit(sess, "authError", map[string]string{"message": "invalid or expired token"})
		return
	}

	// a reconnect replaces the previous registration for the same principal
	s.unregister(sess)
	sess.principal = p
	if p.Kind == api.KindSharedUser {
		s.Chat.Hub.Register(models.RoleUser, p.ID.Hex(), sess.conn)
	}
	if p.LawyerID != nil {
		s.Chat.Hub.Register(models.RoleLawyer, p.LawyerID.Hex(), sess.conn)
	}

	resp := map[string]string{"kind": p.Kind, "role": p.Role}
	if p.Kind != api.KindAdmin {
		resp["id"] = p.ID.Hex()
	}
	s.emit(sess, "authenticated", resp)
	zap.S().Infow("chat socket authenticated", "kind", p.Kind, "email", p.Email)
}

func (s ChatWS) unregister(sess *wsSession) {
	p := sess.principal
	if p.Kind == "" {
		return
	}
	if p.Kind == api.KindSharedUser {
		s.Chat.Hub.Unregister(models.RoleUser, p.ID.Hex(), sess.conn)
	}
	if p.LawyerID != nil {
		s.Chat.Hub.Unregister(models.RoleLawyer, p.LawyerID.Hex(), sess.conn)
	}
}

type wsRoomData struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

// roomForEvent loads the room named by the event and checks the session's
// side of it. A failure is reported on the socket and (nil, "") returned.
func (s ChatWS) roomForEvent(r *http.Request, sess *wsSession, chatID string) (*models.ChatRoom, string) {
	cID, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		s.emit(sess, "error", map[string]string{"message": "invalid chatId"})
		return nil, ""
	}
	room, err := s.Chat.DB.FindOne(r.Context(), bson.M{"_id": cID})
	if err != nil {
		s.emit(sess, "error", map[string]string{"message": "chat not found"})
		return nil, ""
	}
	role := s.Chat.Gate.RoomRole(sess.principal, room)
	if role == "" {
		s.emit(sess, "error", map[string]string{"message": "not a member of this chat"})
		return nil, ""
	}
	return room, role
}

func (s ChatWS) handleJoinRoom(r *http.Request, sess *wsSession, data json.RawMessage) {
	var req wsRoomData
	if err := json.Unmarshal(data, &req); err != nil {
		s.emit(sess, "error", map[string]string{"message": "invalid joinRoom payload"})
		return
	}
	room, role := s.roomForEvent(r, sess, req.ChatID)
	if room == nil {
		return
	}
	s.emit(sess, "joinedRoom", map[string]string{"chatId": room.ID.Hex(), "role": role})
}

func (s ChatWS) handleSendMessage(r *http.Request, sess *wsSession, data json.RawMessage) {
	var req wsRoomData
	if err := json.Unmarshal(data, &req); err != nil || req.Text == "" {
		s.emit(sess, "error", map[string]string{"message": "message text is required"})
		return
	}
	room, role := s.roomForEvent(r, sess, req.ChatID)
	if room == nil {
		return
	}
	if role == roomRoleAdmin {
		s.emit(sess, "error", map[string]string{"message": "administrators cannot send chat messages"})
		return
	}

	_, code, err := s.Chat.appendMessage(r.Context(), room, role, req.Text)
	if err != nil {
		s.emit(sess, "error", map[string]string{"message": "failed to send message"})
		return
	}
	switch code {
	case "":
		// delivered via receiveMessage broadcast
	case CodeAppointmentEnded:
		s.emit(sess, "appointmentEnded", map[string]string{"chatId": room.ID.Hex()})
		s.emit(sess, "error", map[string]string{
			"code":    code,
			"message": "your appointment has ended. You can view this chat but cannot send new messages",
		})
	case CodeNoAppointment:
		s.emit(sess, "error", map[string]string{
			"code":    code,
			"message": "you must have a paid appointment with this lawyer to send messages",
		})
	default:
		s.emit(sess, "error", map[string]string{"code": code, "message": "chat is locked"})
	}
}

func (s ChatWS) relayTyping(r *http.Request, sess *wsSession, data json.RawMessage, event string) {
	var req wsRoomData
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	room, role := s.roomForEvent(r, sess, req.ChatID)
	if room == nil || role == roomRoleAdmin {
		return
	}

	payload := map[string]string{"chatId": room.ID.Hex(), "sender": role}
	if role == models.SenderUser {
		s.Chat.Hub.SendToLawyer(room.LawyerID.Hex(), event, payload)
	} else {
		s.Chat.Hub.SendToUser(room.UserID.Hex(), event, payload)
	}
}

func (s ChatWS) handleMarkAsRead(r *http.Request, sess *wsSession, data json.RawMessage) {
	var req wsRoomData
	if err := json.Unmarshal(data, &req); err != nil {
		s.emit(sess, "error", map[string]string{"message": "invalid markAsRead payload"})
		return
	}
	room, role := s.roomForEvent(r, sess, req.ChatID)
	if room == nil || role == roomRoleAdmin {
		return
	}

	err := s.Chat.markRead(r.Context(), room, role)
	if err != nil {
		s.emit(sess, "error", map[string]string{"message": "failed to mark messages as read"})
	}
}
