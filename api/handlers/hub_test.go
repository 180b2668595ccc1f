package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/legaleagle/legal-eagle-api/api/handlers"
	"github.com/legaleagle/legal-eagle-api/models"
)

// dialTestConn upgrades a loopback connection and hands back both ends
func dialTestConn(t *testing.T) (server *websocket.Conn, client *websocket.Conn, cleanup func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverCh <- conn
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	server = <-serverCh

	return server, client, func() {
		client.Close()
		server.Close()
		srv.Close()
	}
}

func TestChatHub_RegisterAndConnected(t *testing.T) {
	server, _, cleanup := dialTestConn(t)
	defer cleanup()

	hub := handlers.NewChatHub()
	userID := primitive.NewObjectID().Hex()
	conn := handlers.NewChatConn(server)

	assert.False(t, hub.Connected(models.RoleUser, userID))
	hub.Register(models.RoleUser, userID, conn)
	assert.True(t, hub.Connected(models.RoleUser, userID))

	// the same id under the other role is a different principal
	assert.False(t, hub.Connected(models.RoleLawyer, userID))

	hub.Unregister(models.RoleUser, userID, conn)
	assert.False(t, hub.Connected(models.RoleUser, userID))
}

func TestChatHub_UnregisterIgnoresReplacedConn(t *testing.T) {
	first, _, cleanup1 := dialTestConn(t)
	defer cleanup1()
	second, _, cleanup2 := dialTestConn(t)
	defer cleanup2()

	hub := handlers.NewChatHub()
	userID := primitive.NewObjectID().Hex()
	firstConn := handlers.NewChatConn(first)
	secondConn := handlers.NewChatConn(second)

	hub.Register(models.RoleUser, userID, firstConn)
	hub.Register(models.RoleUser, userID, secondConn)

	// the stale connection's deferred unregister must not evict the new one
	hub.Unregister(models.RoleUser, userID, firstConn)
	assert.True(t, hub.Connected(models.RoleUser, userID))

	hub.Unregister(models.RoleUser, userID, secondConn)
	assert.False(t, hub.Connected(models.RoleUser, userID))
}

func TestChatHub_BroadcastToRoom(t *testing.T) {
	userServer, userClient, cleanup1 := dialTestConn(t)
	defer cleanup1()
	lawyerServer, lawyerClient, cleanup2 := dialTestConn(t)
	defer cleanup2()

	hub := handlers.NewChatHub()
	room := &models.ChatRoom{
		ID:       primitive.NewObjectID(),
		UserID:   primitive.NewObjectID(),
		LawyerID: primitive.NewObjectID(),
	}

	hub.Register(models.RoleUser, room.UserID.Hex(), handlers.NewChatConn(userServer))
	hub.Register(models.RoleLawyer, room.LawyerID.Hex(), handlers.NewChatConn(lawyerServer))

	hub.BroadcastToRoom(room, "receiveMessage", map[string]string{"text": "hello"})

	for _, client := range []*websocket.Conn{userClient, lawyerClient} {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame struct {
			Event string            `json:"event"`
			Data  map[string]string `json:"data"`
		}
		require.NoError(t, client.ReadJSON(&frame))
		assert.Equal(t, "receiveMessage", frame.Event)
		assert.Equal(t, "hello", frame.Data["text"])
	}
}

func TestChatHub_ConcurrentWritersShareOneConn(t *testing.T) {
	server, client, cleanup := dialTestConn(t)
	defer cleanup()

	hub := handlers.NewChatHub()
	userID := primitive.NewObjectID().Hex()
	conn := handlers.NewChatConn(server)
	hub.Register(models.RoleUser, userID, conn)

	// hub deliveries and the socket's own replies target the same
	// connection; interleaved writes must come out as whole frames
	const perWriter = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < perWriter; i++ {
			hub.SendToUser(userID, "receiveMessage", map[string]string{"text": "hub"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perWriter; i++ {
			conn.WriteJSON(map[string]interface{}{"event": "typing", "data": map[string]string{}})
		}
	}()

	for i := 0; i < 2*perWriter; i++ {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame struct {
			Event string `json:"event"`
		}
		require.NoError(t, client.ReadJSON(&frame))
		assert.Contains(t, []string{"receiveMessage", "typing"}, frame.Event)
	}
	wg.Wait()
}

func TestChatHub_SendToUnknownIsNoop(t *testing.T) {
	hub := handlers.NewChatHub()
	// nothing registered; must not panic or block
	hub.SendToUser(primitive.NewObjectID().Hex(), "receiveMessage", "x")
	hub.SendToLawyer(primitive.NewObjectID().Hex(), "receiveMessage", "x")
	hub.BroadcastToRoom(nil, "receiveMessage", "x")
}
