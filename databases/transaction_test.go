package databases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/legaleagle/legal-eagle-api/databases"
	"github.com/legaleagle/legal-eagle-api/databases/mocks"
	"github.com/legaleagle/legal-eagle-api/models"
)

func TestTransactionDatabase_FindPage(t *testing.T) {
	userID := primitive.NewObjectID()
	filter := bson.M{"userId": userID}

	stored := []models.Transaction{
		{ID: primitive.NewObjectID(), UserID: userID, Type: models.TransactionDeposit, Amount: 100},
		{ID: primitive.NewObjectID(), UserID: userID, Type: models.TransactionPayment, Amount: 80},
	}

	cursor := &mocks.CursorHelper{}
	cursor.On("All", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		out := args.Get(1).(*[]models.Transaction)
		*out = stored
	}).Return(nil)
	cursor.On("Close", mock.Anything).Return(nil)

	var findOpts *options.FindOptions
	coll := &mocks.CollectionHelper{}
	coll.On("CountDocuments", mock.Anything, filter).Return(int64(45), nil)
	coll.On("Find", mock.Anything, filter, mock.Anything).Run(func(args mock.Arguments) {
		findOpts = args.Get(2).(*options.FindOptions)
	}).Return(cursor, nil)

	db := &mocks.DatabaseHelper{}
	db.On("Collection", "transactions").Return(coll)

	tdb := databases.NewTransactionDatabase(db)
	items, totalPages, err := tdb.FindPage(context.Background(), filter, 2, 20)
	assert.NoError(t, err)
	assert.Equal(t, stored, items)

	// 45 documents at 20 per page round up to 3 pages
	assert.Equal(t, int64(3), totalPages)

	// page 2 of 20 skips the first 20, newest first
	assert.Equal(t, int64(20), *findOpts.Limit)
	assert.Equal(t, int64(20), *findOpts.Skip)
	assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}}, findOpts.Sort)
}

func TestTransactionDatabase_FindPage_CountError(t *testing.T) {
	coll := &mocks.CollectionHelper{}
	coll.On("CountDocuments", mock.Anything, mock.Anything).Return(int64(0), errors.New("connection reset"))

	db := &mocks.DatabaseHelper{}
	db.On("Collection", "transactions").Return(coll)

	tdb := databases.NewTransactionDatabase(db)
	_, _, err := tdb.FindPage(context.Background(), bson.M{}, 1, 20)
	assert.Error(t, err)
	coll.AssertNotCalled(t, "Find", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransactionDatabase_InsertOne(t *testing.T) {
	entry := models.Transaction{
		ID:     primitive.NewObjectID(),
		UserID: primitive.NewObjectID(),
		Type:   models.TransactionDeposit,
		Amount: 50,
		Status: models.TransactionCompleted,
	}

	res := &mocks.InsertOneResultHelper{}
	coll := &mocks.CollectionHelper{}
	coll.On("InsertOne", mock.Anything, entry).Return(res, nil)

	db := &mocks.DatabaseHelper{}
	db.On("Collection", "transactions").Return(coll)

	tdb := databases.NewTransactionDatabase(db)
	got, err := tdb.InsertOne(context.Background(), entry)
	assert.NoError(t, err)
	assert.Equal(t, res, got)
}
