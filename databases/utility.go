package databases

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoPaginate struct {
	limit int64
	page  int64
}

func newMongoPaginate(limit, page int) *mongoPaginate {
	return &mongoPaginate{
		limit: int64(limit),
		page:  int64(page),
	}
}

func (mp *mongoPaginate) getPaginatedOpts() *options.FindOptions {
	l := mp.limit
	skip := mp.page*mp.limit - mp.limit
	fOpt := options.FindOptions{Limit: &l, Skip: &skip}

	return &fOpt
}

// getReverseChronOpts paginates with newest-first ordering, used by the
// transaction ledger history
func (mp *mongoPaginate) getReverseChronOpts() *options.FindOptions {
	fOpt := mp.getPaginatedOpts()
	fOpt.SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return fOpt
}
