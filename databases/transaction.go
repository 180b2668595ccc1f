package databases

// go generate: mockery --name TransactionDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/legaleagle/legal-eagle-api/models"
)

const transactionName = "transactions"

// TransactionDatabase contains the methods to use with the transaction database.
// The ledger is append-only: there is deliberately no update or delete here.
type TransactionDatabase interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Transaction, error)
	FindPage(ctx context.Context, filter interface{}, page, limit int) ([]models.Transaction, int64, error)
	InsertOne(ctx context.Context, transaction models.Transaction) (InsertOneResultHelper, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type transactionDatabase struct {
	db DatabaseHelper
}

// NewTransactionDatabase initializes a new instance of transaction database with the provided db connection
func NewTransactionDatabase(db DatabaseHelper) TransactionDatabase {
	return &transactionDatabase{
		db: db,
	}
}

func (t *transactionDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Transaction, error) {
	var transactions []models.Transaction
	cur, err := t.db.Collection(transactionName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	err = cur.All(ctx, &transactions)
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// FindPage returns one reverse-chronological page of the ledger plus the
// total page count for the filter
func (t *transactionDatabase) FindPage(ctx context.Context, filter interface{}, page, limit int) ([]models.Transaction, int64, error) {
	total, err := t.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := newMongoPaginate(limit, page).getReverseChronOpts()
	items, err := t.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	totalPages := total / int64(limit)
	if total%int64(limit) != 0 {
		totalPages++
	}
	return items, totalPages, nil
}

func (t *transactionDatabase) InsertOne(ctx context.Context, transaction models.Transaction) (InsertOneResultHelper, error) {
	res, err := t.db.Collection(transactionName).InsertOne(ctx, transaction)
	return res, err
}

func (t *transactionDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return t.db.Collection(transactionName).CountDocuments(ctx, filter, opts...)
}
