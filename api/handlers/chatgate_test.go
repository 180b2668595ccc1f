package handlers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/legaleagle/legal-eagle-api/api"
	"github.com/legaleagle/legal-eagle-api/api/handlers"
	"github.com/legaleagle/legal-eagle-api/databases/mocks"
	"github.com/legaleagle/legal-eagle-api/models"
)

func TestChatGate_RoomRole(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()
	room := &models.ChatRoom{UserID: userID, LawyerID: lawyerID}

	g := &handlers.ChatGate{}

	client := api.Principal{Kind: api.KindSharedUser, ID: userID, Role: models.RoleUser}
	assert.Equal(t, models.SenderUser, g.RoomRole(client, room))

	direct := api.Principal{Kind: api.KindDirectLawyer, ID: lawyerID, Role: models.RoleLawyer, LawyerID: &lawyerID}
	assert.Equal(t, models.SenderLawyer, g.RoomRole(direct, room))

	// a shared account acting through its lawyer profile back-reference
	sharedLawyerUserID := primitive.NewObjectID()
	shared := api.Principal{Kind: api.KindSharedUser, ID: sharedLawyerUserID, Role: models.RoleLawyer, LawyerID: &lawyerID}
	assert.Equal(t, models.SenderLawyer, g.RoomRole(shared, room))

	admin := api.Principal{Kind: api.KindAdmin, Email: "ops@example.com"}
	assert.Equal(t, "admin", g.RoomRole(admin, room))

	stranger := api.Principal{Kind: api.KindSharedUser, ID: primitive.NewObjectID(), Role: models.RoleUser}
	assert.Equal(t, "", g.RoomRole(stranger, room))
}

func TestChatGate_Active(t *testing.T) {
	g := &handlers.ChatGate{}
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()

	assert.False(t, g.Active(nil))

	assert.True(t, g.Active(qualifyingAppointment(userID, lawyerID, -30*time.Minute)))
	assert.True(t, g.Active(qualifyingAppointment(userID, lawyerID, 30*time.Minute)))
	assert.False(t, g.Active(qualifyingAppointment(userID, lawyerID, -2*time.Hour)))

	// unparseable schedule never counts as active
	broken := &models.Appointment{Date: "someday", Time: "noon", Duration: 60}
	assert.False(t, g.Active(broken))
}

func TestChatGate_QualifyingAppointment_NoneIsNotAnError(t *testing.T) {
	adb := &mocks.AppointmentDatabase{}
	adb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)

	g := &handlers.ChatGate{ADB: adb}
	appt, err := g.QualifyingAppointment(context.Background(), primitive.NewObjectID(), primitive.NewObjectID())
	assert.NoError(t, err)
	assert.Nil(t, appt)
}

func TestChatGate_QualifyingAppointment_RealErrorPropagates(t *testing.T) {
	adb := &mocks.AppointmentDatabase{}
	adb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	g := &handlers.ChatGate{ADB: adb}
	_, err := g.QualifyingAppointment(context.Background(), primitive.NewObjectID(), primitive.NewObjectID())
	assert.Error(t, err)
}

func TestChatGate_AuthorizeSend_Codes(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()

	locked := &models.ChatRoom{UserID: userID, LawyerID: lawyerID}
	unlocked := &models.ChatRoom{UserID: userID, LawyerID: lawyerID, IsChatUnlocked: true}

	t.Run("locked room refuses everyone", func(t *testing.T) {
		g := &handlers.ChatGate{ADB: &mocks.AppointmentDatabase{}}
		code, err := g.AuthorizeSend(context.Background(), models.SenderLawyer, locked)
		assert.NoError(t, err)
		assert.Equal(t, handlers.CodeChatLocked, code)
	})

	t.Run("client without appointment", func(t *testing.T) {
		adb := &mocks.AppointmentDatabase{}
		adb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)
		g := &handlers.ChatGate{ADB: adb}

		code, err := g.AuthorizeSend(context.Background(), models.SenderUser, unlocked)
		assert.NoError(t, err)
		assert.Equal(t, handlers.CodeNoAppointment, code)
	})

	t.Run("client with expired window", func(t *testing.T) {
		adb := &mocks.AppointmentDatabase{}
		adb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).Return(qualifyingAppointment(userID, lawyerID, -2*time.Hour), nil)
		g := &handlers.ChatGate{ADB: adb}

		code, err := g.AuthorizeSend(context.Background(), models.SenderUser, unlocked)
		assert.NoError(t, err)
		assert.Equal(t, handlers.CodeAppointmentEnded, code)
	})

	t.Run("lawyer on unlocked room", func(t *testing.T) {
		g := &handlers.ChatGate{ADB: &mocks.AppointmentDatabase{}}
		code, err := g.AuthorizeSend(context.Background(), models.SenderLawyer, unlocked)
		assert.NoError(t, err)
		assert.Equal(t, "", code)
	})
}

func TestChatGate_AuthorizeView_HistoryOutlivesWindow(t *testing.T) {
	userID := primitive.NewObjectID()
	lawyerID := primitive.NewObjectID()
	room := &models.ChatRoom{UserID: userID, LawyerID: lawyerID, IsChatUnlocked: true}

	adb := &mocks.AppointmentDatabase{}
	adb.On("FindOne", mock.Anything, mock.Anything, mock.Anything).Return(qualifyingAppointment(userID, lawyerID, -48*time.Hour), nil)

	g := &handlers.ChatGate{ADB: adb}
	code, err := g.AuthorizeView(context.Background(), models.SenderUser, room)
	assert.NoError(t, err)
	assert.Equal(t, "", code)
}
